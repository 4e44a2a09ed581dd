package cli

import (
	"fmt"
	"io"
	"reflect"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"sigs.k8s.io/yaml"
)

// printResult writes v as JSON when --json is set, otherwise as YAML under
// a heading. Empty lists print a short notice instead.
func printResult(w io.Writer, heading string, v any) error {
	if jsonOutput {
		printJSON(w, map[string]any{
			"result": 1,
			"value":  v,
		})
		return nil
	}
	if isEmptyList(v) {
		fmt.Fprintf(w, "No %s found\n", heading)
		return nil
	}
	yamlBytes, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to format output")
	}
	fmt.Fprintf(w, "%s:\n", titleCase(heading))
	fmt.Fprint(w, string(yamlBytes))
	return nil
}

// printDone reports a completed change. With --passthru the affected
// objects are printed as well.
func printDone(w io.Writer, message, heading string, affected any) error {
	if passThru || jsonOutput {
		if !jsonOutput {
			okLabel.Fprintln(w, message)
		}
		return printResult(w, heading, affected)
	}
	okLabel.Fprintln(w, message)
	return nil
}

// printWhatIf closes a --what-if run. The skipped changes themselves are
// logged as warnings by the client.
func printWhatIf(w io.Writer) {
	if jsonOutput {
		printJSON(w, map[string]any{
			"result":  0,
			"what_if": true,
		})
		return
	}
	warnLabel.Fprintln(w, "No changes made (--what-if)")
}

func isEmptyList(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
