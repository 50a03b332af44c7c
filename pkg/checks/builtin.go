package checks

import (
	"debug/elf"
	"debug/pe"
	"fmt"
	"os"
	"strings"
)

// TargetDefault makes a link constraint resolve against the environment's
// target description (TARGET_OBJFMT / TARGET_ARCH_TYPE) at check time.
const TargetDefault = "<target>"

const defaultLinkSource = "int main(void) { return 0; }\n"

// LinkOptions constrain what the produced executable must look like.
// Empty fields are not checked.
type LinkOptions struct {
	// Source is the program to link; a minimal C main when empty.
	Source string
	// Ext is the source file extension, ".c" when empty.
	Ext string
	// Format is the expected object format: "ELF", "PE", or TargetDefault.
	Format string
	// ISA is the expected machine: "x86", "x86_64", "AVR", or TargetDefault.
	ISA string
}

// Link returns a check that links a probe program with the environment's
// linker driver and, when constrained, inspects the produced binary's object
// format and machine type.
func Link(opts LinkOptions) *Check {
	return New("link", func(ctx *Context) Result {
		source := opts.Source
		if source == "" {
			source = defaultLinkSource
		}
		ext := opts.Ext
		if ext == "" {
			ext = ".c"
		}

		format := opts.Format
		if format == TargetDefault {
			format = ctx.Env().String("TARGET_OBJFMT")
		}
		isa := opts.ISA
		if isa == TargetDefault {
			isa = ctx.Env().String("TARGET_ARCH_TYPE")
		}

		out, ok := ctx.TryLink(source, ext)
		if !ok {
			return Failf("failed to link probe program")
		}
		if format == "" && isa == "" {
			return Pass()
		}

		switch strings.ToUpper(format) {
		case "ELF":
			return checkELF(out, isa)
		case "PE":
			return checkPE(out, isa)
		case "":
			// ISA constraint without a format: accept either container.
			if r := checkELF(out, isa); !r.Failed() {
				return r
			}
			return checkPE(out, isa)
		default:
			return Failf("unsupported object format %q", format)
		}
	})
}

func checkELF(path, isa string) Result {
	f, err := elf.Open(path)
	if err != nil {
		return Failf("output is not an ELF binary: %v", err)
	}
	defer f.Close()

	if isa == "" {
		return Pass()
	}

	var want elf.Machine
	switch isa {
	case "x86":
		want = elf.EM_386
	case "x86_64":
		want = elf.EM_X86_64
	case "AVR":
		want = elf.EM_AVR
	default:
		return Failf("unsupported ELF machine type %q", isa)
	}
	if f.Machine != want {
		return Failf("ELF machine is %v, want %s", f.Machine, isa)
	}
	return Pass()
}

func checkPE(path, isa string) Result {
	f, err := pe.Open(path)
	if err != nil {
		return Failf("output is not a PE binary: %v", err)
	}
	defer f.Close()

	if isa == "" {
		return Pass()
	}

	var want uint16
	switch isa {
	case "x86":
		want = pe.IMAGE_FILE_MACHINE_I386
	case "x86_64":
		want = pe.IMAGE_FILE_MACHINE_AMD64
	default:
		return Failf("unsupported PE machine type %q", isa)
	}
	if f.Machine != want {
		return Failf("PE machine is %#x, want %s", f.Machine, isa)
	}
	return Pass()
}

// DirContains returns a check that passes when one of the directories listed
// in the given environment component contains an entry whose filename has
// name as a substring. It is the default library check: "m" matches libm.so,
// libm.a, or m.lib without the caller spelling out platform naming.
func DirContains(component, name string) *Check {
	return New(fmt.Sprintf("dir-contains %s in $%s", name, component),
		func(ctx *Context) Result {
			for _, dir := range ctx.Env().List(component) {
				entries, err := os.ReadDir(dir)
				if err != nil {
					continue
				}
				for _, entry := range entries {
					if strings.Contains(entry.Name(), name) {
						return Pass()
					}
				}
			}
			return Failf("%s not found in $%s", name, component)
		})
}

// ComponentValue returns a check that passes when the environment component
// equals (scalar) or contains (list) the given value.
func ComponentValue(component, value string) *Check {
	return New(fmt.Sprintf("component $%s has %q", component, value),
		func(ctx *Context) Result {
			raw, ok := ctx.Env().Lookup(component)
			if !ok {
				return Failf("$%s is not set", component)
			}
			switch v := raw.(type) {
			case string:
				if v == value {
					return Pass()
				}
			case []string:
				for _, item := range v {
					if item == value {
						return Pass()
					}
				}
			default:
				if fmt.Sprint(v) == value {
					return Pass()
				}
			}
			return Failf("$%s does not contain %q", component, value)
		})
}

// Program returns a check that passes when an executable named name exists
// in the environment's PATH directories.
func Program(name string) *Check {
	return New(fmt.Sprintf("program %s", name), func(ctx *Context) Result {
		if _, ok := ctx.LookProgram(name); !ok {
			return Failf("program %s not found", name)
		}
		return Pass()
	})
}
