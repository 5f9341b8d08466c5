package pipeline

// Mode is the terminal action selected by the command line.
type Mode int

const (
	// ModeBuild verifies the toolchain, builds and installs the extension.
	ModeBuild Mode = iota
	// ModeIncludes prints the framework include and library paths.
	ModeIncludes
	// ModeClean removes the build directory.
	ModeClean
	// ModeGPUCheck prints the GPU capability report.
	ModeGPUCheck
	// ModeHelp prints usage.
	ModeHelp
	// ModeVersion prints the tool version.
	ModeVersion
)

func (m Mode) String() string {
	switch m {
	case ModeIncludes:
		return "include"
	case ModeClean:
		return "clean"
	case ModeGPUCheck:
		return "gpu-check"
	case ModeHelp:
		return "help"
	case ModeVersion:
		return "version"
	default:
		return "build"
	}
}

// ParseMode selects a mode by token presence anywhere in args, so
// "build.exe x clean" cleans. Tokens match exactly; "CLEAN" is not a verb.
// "include" takes priority over "clean".
func ParseMode(args []string) Mode {
	present := make(map[string]bool, len(args))
	for _, arg := range args {
		present[arg] = true
	}

	switch {
	case present["include"]:
		return ModeIncludes
	case present["clean"]:
		return ModeClean
	case present["gpu-check"]:
		return ModeGPUCheck
	case present["help"] || present["-h"] || present["--help"]:
		return ModeHelp
	case present["version"]:
		return ModeVersion
	default:
		return ModeBuild
	}
}
