package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sdengine/internal/sdcompile"
	"sdengine/internal/sddata"
)

var compileCmd = &cobra.Command{
	Use:   "compile [project.json]",
	Short: "Compile a native-JSON project and report slab layout per model.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := loadProject(args[0])
		if err != nil {
			return err
		}
		cp, errs := sdcompile.Compile(project)
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		for name, cm := range cp.Models {
			fmt.Printf("%s: %s slab, %s\n",
				name,
				humanize.Bytes(uint64(cm.Offsets.TotalSize()*8)),
				humanize.Comma(int64(len(cm.Offsets.Order())))+" vars")
		}
		if len(errs) > 0 {
			return fmt.Errorf("compile failed with %d error(s)", len(errs))
		}
		return nil
	},
}

// loadProject reads a native project file, dispatching on extension: .yaml
// and .yml decode via yaml.v3 (sddata's structs carry yaml tags alongside
// their json ones for exactly this), everything else decodes as JSON.
func loadProject(path string) (*sddata.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var project sddata.Project
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &project); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &project); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return &project, nil
}
