package pipeline

// Step component names of the canonical per-model pipeline.
const (
	ComponentTrain    = "train"
	ComponentValidate = "validate"
	ComponentRegister = "register"
)

// Inputs and outputs shared by the canonical steps.
const (
	InputConfigPath = "config_path"
	InputModel      = "model"
	InputOutputDir  = "output_dir"
	InputRunID      = "run_id"
	InputFlagFile   = "flag_file"

	OutputRunID    = "run_id"
	OutputFlagFile = "flag_file"
	OutputVersion  = "version"
)

// DefaultDefinition is the per-model train -> validate -> register pipeline.
// The validate step consumes the run produced by train, and register reads
// the flag artifact written by validate.
func DefaultDefinition() Definition {
	return Definition{
		Name: "train-validate-register",
		Inputs: []Port{
			{Name: InputConfigPath, Type: TypePath},
			{Name: InputModel, Type: TypeString},
			{Name: InputOutputDir, Type: TypePath},
		},
		Steps: []Step{
			{
				Name:      ComponentTrain,
				Component: ComponentTrain,
				Inputs: []Port{
					{Name: InputConfigPath, Type: TypePath},
					{Name: InputModel, Type: TypeString},
					{Name: InputOutputDir, Type: TypePath},
				},
				Outputs: []Port{{Name: OutputRunID, Type: TypeString}},
				Bindings: map[string]Binding{
					InputConfigPath: FromInput(InputConfigPath),
					InputModel:      FromInput(InputModel),
					InputOutputDir:  FromInput(InputOutputDir),
				},
			},
			{
				Name:      ComponentValidate,
				Component: ComponentValidate,
				Inputs: []Port{
					{Name: InputConfigPath, Type: TypePath},
					{Name: InputModel, Type: TypeString},
					{Name: InputOutputDir, Type: TypePath},
					{Name: InputRunID, Type: TypeString, Optional: true},
				},
				Outputs: []Port{{Name: OutputFlagFile, Type: TypePath}},
				Bindings: map[string]Binding{
					InputConfigPath: FromInput(InputConfigPath),
					InputModel:      FromInput(InputModel),
					InputOutputDir:  FromInput(InputOutputDir),
					InputRunID:      FromOutput(ComponentTrain, OutputRunID),
				},
				DependsOn: []string{ComponentTrain},
			},
			{
				Name:      ComponentRegister,
				Component: ComponentRegister,
				Inputs: []Port{
					{Name: InputConfigPath, Type: TypePath},
					{Name: InputModel, Type: TypeString},
					{Name: InputOutputDir, Type: TypePath},
					{Name: InputRunID, Type: TypeString, Optional: true},
					{Name: InputFlagFile, Type: TypePath, Optional: true},
				},
				Outputs: []Port{{Name: OutputVersion, Type: TypeInteger}},
				Bindings: map[string]Binding{
					InputConfigPath: FromInput(InputConfigPath),
					InputModel:      FromInput(InputModel),
					InputOutputDir:  FromInput(InputOutputDir),
					InputRunID:      FromOutput(ComponentTrain, OutputRunID),
					InputFlagFile:   FromOutput(ComponentValidate, OutputFlagFile),
				},
				DependsOn: []string{ComponentTrain, ComponentValidate},
			},
		},
	}
}

// ComponentIDInputs declares one string input per component key, named
// <key>_component_id, for rendering a remote pipeline template.
func ComponentIDInputs(keys []string) Definition {
	d := Definition{Name: "component-ids"}
	for _, k := range keys {
		d.Inputs = append(d.Inputs, Port{Name: k + "_component_id", Type: TypeString})
	}
	return d
}
