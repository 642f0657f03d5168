package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/hfmirror/internal/output"
	"github.com/tanq16/hfmirror/internal/utils"
	"gopkg.in/yaml.v3"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch YAML_FILE",
		Short: "Download several models listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := readBatchFile(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			os.Exit(runModels(entries))
		},
	}
	return cmd
}

func readBatchFile(path string) ([]utils.RepoEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var batchFile utils.BatchFile
	if err := yaml.Unmarshal(data, &batchFile); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	var entries []utils.RepoEntry
	for _, entry := range batchFile.Models {
		entry.ID = strings.TrimSpace(entry.ID)
		if err := utils.ValidateModelID(entry.ID); err != nil {
			output.PrintWarning(fmt.Sprintf("Skipping entry: %v", err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid models found in %s", path)
	}
	return entries, nil
}
