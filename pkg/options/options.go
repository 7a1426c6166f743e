// Package options computes the effective option set for one notebooklet
// run from its metadata and the caller-supplied request.
package options

import (
	"strings"

	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
)

// All is the pseudo-option that expands to every declared option.
const All = "all"

// Resolve computes the enabled options for a run.
//
// Rules:
//   - empty request: the metadata default set.
//   - all bare names: exactly the named set (explicit override).
//   - all names prefixed "+" or "-": start from the defaults, add and
//     remove in list order.
//   - mixing bare and prefixed entries fails with an InvalidOptionError,
//     as does any name not declared in the metadata.
//   - the bare name "all" expands to every declared option.
//
// The result preserves metadata declaration order. Resolve is a pure
// function of its inputs.
func Resolve(meta *metadata.Metadata, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return meta.DefaultOptionNames(), nil
	}

	known := make(map[string]struct{})
	for _, name := range meta.AllOptionNames() {
		known[name] = struct{}{}
	}

	var bare, prefixed []string

	for _, opt := range requested {
		if strings.HasPrefix(opt, "+") || strings.HasPrefix(opt, "-") {
			prefixed = append(prefixed, opt)
		} else {
			bare = append(bare, opt)
		}
	}

	if len(bare) > 0 && len(prefixed) > 0 {
		return nil, nberrors.NewInvalidOptionError(
			"cannot mix explicit and incremental option syntax", requested...,
		)
	}

	enabled := make(map[string]struct{})

	if len(prefixed) > 0 {
		for _, name := range meta.DefaultOptionNames() {
			enabled[name] = struct{}{}
		}

		for _, opt := range prefixed {
			name := opt[1:]
			if _, ok := known[name]; !ok {
				return nil, nberrors.NewInvalidOptionError("unknown option name", name)
			}

			if opt[0] == '+' {
				enabled[name] = struct{}{}
			} else {
				delete(enabled, name)
			}
		}
	} else {
		for _, name := range bare {
			if name == All {
				for known := range known {
					enabled[known] = struct{}{}
				}

				continue
			}

			if _, ok := known[name]; !ok {
				return nil, nberrors.NewInvalidOptionError("unknown option name", name)
			}

			enabled[name] = struct{}{}
		}
	}

	// Declaration order keeps runs deterministic.
	resolved := make([]string, 0, len(enabled))
	for _, name := range meta.AllOptionNames() {
		if _, ok := enabled[name]; ok {
			resolved = append(resolved, name)
		}
	}

	return resolved, nil
}

// Enabled reports whether name is present in the resolved set.
func Enabled(resolved []string, name string) bool {
	for _, opt := range resolved {
		if opt == name {
			return true
		}
	}

	return false
}
