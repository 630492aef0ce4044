// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tombee/webd/internal/commands/shared"
)

// newHelpTestRoot builds a root with a launch-style flag, a global --json and
// one subcommand.
func newHelpTestRoot(t *testing.T) *cobra.Command {
	t.Helper()

	rootCmd := &cobra.Command{
		Use:   "test",
		Short: "Test command",
		RunE:  func(cmd *cobra.Command, args []string) error { return nil },
	}
	jsonPtr, _ := shared.RegisterFlagPointers()
	rootCmd.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	t.Cleanup(func() { *jsonPtr = false })
	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on")

	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample subcommand",
		Long:  "This is a sample subcommand for testing",
		Example: `  test sample
  test sample --flag value`,
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	sampleCmd.Flags().String("flag", "", "A sample flag")
	rootCmd.AddCommand(sampleCmd)

	rootCmd.SetHelpCommand(NewHelpCommand(rootCmd))
	return rootCmd
}

func runHelp(t *testing.T, rootCmd *cobra.Command, args ...string) (HelpResponse, string) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"help"}, args...))

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var resp HelpResponse
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse JSON output: %v\nOutput: %s", err, buf.String())
		}
	}
	return resp, buf.String()
}

func TestHelpCommandJSON_All(t *testing.T) {
	resp, _ := runHelp(t, newHelpTestRoot(t), "--json")

	if resp.Version != shared.JSONVersion {
		t.Errorf("Expected version %s, got %s", shared.JSONVersion, resp.Version)
	}
	if !resp.Success {
		t.Errorf("Expected success true, got false")
	}
	if len(resp.Commands) != 1 || resp.Commands[0].Name != "sample" {
		t.Errorf("Expected only the sample command, got %+v", resp.Commands)
	}
	if resp.Command == nil || resp.Command.Name != "test" {
		t.Fatalf("Expected root command metadata, got %+v", resp.Command)
	}

	var foundPort bool
	for _, f := range resp.Command.Flags {
		if f.Name == "port" && f.Shorthand == "p" {
			foundPort = true
		}
	}
	if !foundPort {
		t.Errorf("Expected root flags to include --port, got %+v", resp.Command.Flags)
	}
	if len(resp.GlobalFlags) != 1 || resp.GlobalFlags[0].Name != "json" {
		t.Errorf("Expected global flags [json], got %+v", resp.GlobalFlags)
	}
}

func TestHelpCommandJSON_Single(t *testing.T) {
	resp, _ := runHelp(t, newHelpTestRoot(t), "sample", "--json")

	if resp.Command == nil {
		t.Fatal("Expected command metadata, got nil")
	}
	if resp.Command.Name != "sample" {
		t.Errorf("Expected command name 'sample', got %s", resp.Command.Name)
	}
	if resp.Command.Examples == "" {
		t.Errorf("Expected examples to be populated")
	}
	if resp.JSONResponse.Command != "help sample" {
		t.Errorf("Expected envelope command 'help sample', got %s", resp.JSONResponse.Command)
	}
	if len(resp.Commands) > 0 {
		t.Errorf("Expected commands to be empty for single command, got %d", len(resp.Commands))
	}
}

func TestHelpCommandHumanOutput(t *testing.T) {
	_, output := runHelp(t, newHelpTestRoot(t))

	if strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("Expected human output, got JSON")
	}
	if !strings.Contains(output, "sample") {
		t.Errorf("Expected the sample command to be listed, got: %s", output)
	}
}

func TestHelpCommandUnknown(t *testing.T) {
	rootCmd := newHelpTestRoot(t)
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"help", "nope"})

	if err := rootCmd.Execute(); err == nil {
		t.Error("Expected an error for an unknown command")
	}
}

func TestExtractCommandMetadata(t *testing.T) {
	cmd := &cobra.Command{
		Use:     "testcmd",
		Short:   "Test command",
		Long:    "This is a longer description",
		Example: "testcmd --flag value",
	}
	cmd.Flags().String("flag", "default", "A test flag")
	cmd.Flags().Bool("bool-flag", false, "A boolean flag")

	metadata := extractCommandMetadata(cmd)

	if metadata.Name != "testcmd" {
		t.Errorf("Expected name 'testcmd', got %s", metadata.Name)
	}
	if metadata.Short != "Test command" {
		t.Errorf("Expected short 'Test command', got %s", metadata.Short)
	}
	if metadata.Long != "This is a longer description" {
		t.Errorf("Expected long description, got %s", metadata.Long)
	}
	if len(metadata.Flags) != 2 {
		t.Errorf("Expected 2 flags, got %d", len(metadata.Flags))
	}
	if metadata.Flags[0].Name != "bool-flag" || metadata.Flags[1].Default != "default" {
		t.Errorf("Unexpected flags %+v", metadata.Flags)
	}
}

func TestExtractGlobalFlags(t *testing.T) {
	rootCmd := &cobra.Command{
		Use: "test",
	}
	rootCmd.PersistentFlags().Bool("json", false, "JSON output")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config directory")

	flags := extractGlobalFlags(rootCmd)

	if len(flags) != 2 {
		t.Fatalf("Expected 2 global flags, got %d", len(flags))
	}

	foundConfig := false
	for _, f := range flags {
		if f.Name == "config" {
			foundConfig = true
			if f.Shorthand != "c" {
				t.Errorf("Expected shorthand 'c', got %s", f.Shorthand)
			}
		}
	}
	if !foundConfig {
		t.Errorf("Expected to find 'config' flag")
	}
}
