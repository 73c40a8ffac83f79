package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sdengine/internal/sdcompile"
	"sdengine/internal/sdsim"
)

var (
	runModel string
	runTo    float64
)

var runCmd = &cobra.Command{
	Use:   "run [project.json]",
	Short: "Compile a project and run one model to completion (or to --to).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := loadProject(args[0])
		if err != nil {
			return err
		}
		cp, errs := sdcompile.Compile(project)
		if len(errs) > 0 {
			for _, e := range errs {
				fmt.Println(e)
			}
			return fmt.Errorf("compile failed with %d error(s)", len(errs))
		}
		model := runModel
		if model == "" && len(project.Models) == 1 {
			model = project.Models[0].Name
		}
		cm := cp.ModelByName(model)
		if cm == nil {
			return fmt.Errorf("unknown model %q", model)
		}

		sim := sdsim.New(cp, cm, false)
		if err := sim.RunInitials(); err != nil {
			return err
		}
		if runTo > 0 {
			err = sim.RunTo(runTo)
		} else {
			err = sim.RunToEnd()
		}
		if err != nil {
			return err
		}

		for _, ident := range cm.Offsets.Order() {
			v, _ := sim.GetValue(string(ident))
			fmt.Printf("%s = %v\n", ident, v)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "model name (defaults to the project's only model)")
	runCmd.Flags().Float64Var(&runTo, "to", 0, "run only to this simulated time (defaults to final_time)")
}
