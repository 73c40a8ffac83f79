package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"github.com/spf13/cobra"

	"sdengine/internal/sddata"
	"sdengine/internal/sdrun"
)

// epochForSimStart interprets a SimSpecs.Start as days since the Unix
// epoch, the simplest reading when time_units implies a calendar axis
// (spec §6.1 leaves the calendar anchor to the consumer).
func epochForSimStart(specs sddata.SimSpecs) time.Time {
	return time.Unix(int64(specs.Start*86400), 0).UTC()
}

var inspectModel string

var inspectCmd = &cobra.Command{
	Use:   "inspect [project.json]",
	Short: "Enumerate a model's variables and incoming dependency edges.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := loadProject(args[0])
		if err != nil {
			return err
		}
		model := project.ModelByName(inspectModel)
		if model == nil && len(project.Models) == 1 {
			model = &project.Models[0]
		}
		if model == nil {
			return fmt.Errorf("unknown model %q", inspectModel)
		}

		if project.SimSpecs.TimeUnits != "" {
			fmt.Printf("time units: %s (start label %s)\n",
				project.SimSpecs.TimeUnits,
				strftime.Format("%Y-%m-%d", epochForSimStart(project.SimSpecs)))
		}

		for _, v := range model.Variables {
			if strings.HasPrefix(v.Ident, "$") {
				continue // private SMTH1-style generated variable
			}
			deps := incomingDeps(v)
			fmt.Printf("%s (%s): depends on %v\n", v.Ident, v.Kind, deps)
		}
		return nil
	},
}

// incomingDeps reports the variables v reads from, skipping private
// "$"-prefixed generated identifiers (spec §6.2).
func incomingDeps(v sddata.Variable) []string {
	var raw []string
	switch v.Kind {
	case sddata.KindStock:
		raw = sdrun.ExtractDeps(v.Init)
	case sddata.KindModule:
		for _, in := range v.Inputs {
			raw = append(raw, in.Src)
		}
	default:
		raw = sdrun.ExtractDeps(v.Equation)
	}
	out := raw[:0]
	for _, d := range raw {
		if !strings.HasPrefix(d, "$") {
			out = append(out, d)
		}
	}
	return out
}

func init() {
	inspectCmd.Flags().StringVar(&inspectModel, "model", "", "model name (defaults to the project's only model)")
}
