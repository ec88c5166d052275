package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/schemasync/internal/build"
)

// Mode controls how errors are handled during loading.
type Mode int

const (
	// FailFast stops on the first error encountered.
	FailFast Mode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// Result contains the items loaded from a directory.
type Result struct {
	Items     []*Item
	FileCount int
}

// Tasks returns the build task of every item, in declaration order.
func (r *Result) Tasks() []build.Task {
	tasks := make([]build.Task, 0, len(r.Items))
	for _, it := range r.Items {
		tasks = append(tasks, it.Task())
	}
	return tasks
}

// Register adds every item to reg.
func (r *Result) Register(reg *build.Registry) error {
	for _, it := range r.Items {
		if err := reg.Register(it.Task(), it.Declaration()); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the CUE package in dir and decodes every item.<Name>
// declaration. With FailFast it returns on the first error.
func Load(dir string, mode Mode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("declarations directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing declarations directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{fromCUE(ErrCodeBuildFailed, err)}
	}

	result := &Result{FileCount: len(files)}
	errs := decodeItems(value, mode, result)
	if len(result.Items) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no items declared"})
	}
	return result, errs
}

// LoadString decodes items from a single CUE source. Used by tests and
// for inline declarations.
func LoadString(src string) (*Result, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{fromCUE(ErrCodeBuildFailed, err)}
	}
	result := &Result{FileCount: 1}
	return result, decodeItems(value, CollectAll, result)
}

func decodeItems(value cue.Value, mode Mode, result *Result) []error {
	items := value.LookupPath(cue.ParsePath("item"))
	if !items.Exists() {
		return nil
	}
	iter, err := items.Fields()
	if err != nil {
		return []error{fromCUE(ErrCodeGeneric, err)}
	}

	var errs []error
	for iter.Next() {
		it, err := compileItem(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == FailFast {
				return errs
			}
			continue
		}
		result.Items = append(result.Items, it)
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
