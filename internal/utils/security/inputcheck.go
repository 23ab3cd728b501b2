package security

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Limits bounds user supplied strings (flags, arguments, config values).
type Limits struct {
	MaxString int
	MaxPath   int
	AllowNL   bool
	AllowTab  bool
}

func DefaultLimits() Limits {
	return Limits{
		MaxString: 4096,
		MaxPath:   4096,
		AllowNL:   false,
		AllowTab:  true,
	}
}

// ValidateString rejects invalid UTF-8, NUL bytes, control runes and
// over-long values. Empty strings are accepted.
func ValidateString(name, s string, lim Limits) error {
	return validate(name, s, lim, lim.MaxString)
}

// ValidatePath applies ValidateString rules with the path length limit.
func ValidatePath(name, s string, lim Limits) error {
	return validate(name, s, lim, lim.MaxPath)
}

func validate(name, s string, lim Limits, max int) error {
	if s == "" {
		return nil
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s: invalid UTF-8", name)
	}
	if strings.ContainsRune(s, '\x00') {
		return fmt.Errorf("%s: contains NUL byte", name)
	}
	if n := utf8.RuneCountInString(s); max > 0 && n > max {
		return fmt.Errorf("%s: too long (%d > %d)", name, n, max)
	}
	for _, r := range s {
		switch {
		case r == '\n' && lim.AllowNL:
		case r == '\t' && lim.AllowTab:
		case !unicode.IsPrint(r):
			return fmt.Errorf("%s: contains non-printable/control runes", name)
		}
	}
	return nil
}

// ValidateHeaderValue reports whether s can be sent as an HTTP header field
// value: visible ASCII, space, horizontal tab and obs-text bytes only.
func ValidateHeaderValue(name, s string) error {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\t' {
			continue
		}
		if b < ' ' || b == 0x7f {
			return fmt.Errorf("%s: invalid header value byte 0x%02x at offset %d", name, b, i)
		}
	}
	return nil
}

// ValidateStructStrings walks obj and validates every string field. Fields
// whose name contains "path", "file" or "dir" use the path limit.
func ValidateStructStrings(obj any, lim Limits) error {
	return walk(reflect.ValueOf(obj), "config", lim, map[uintptr]bool{})
}

func walk(v reflect.Value, name string, lim Limits, seen map[uintptr]bool) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return walk(v.Elem(), name, lim, seen)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := walk(v.Field(i), name+"."+t.Field(i).Name, lim, seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), fmt.Sprintf("%s[%d]", name, i), lim, seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := walk(iter.Value(), fmt.Sprintf("%s[%v]", name, iter.Key()), lim, seen); err != nil {
				return err
			}
		}
	case reflect.String:
		if isPathy(name) {
			return ValidatePath(name, v.String(), lim)
		}
		return ValidateString(name, v.String(), lim)
	}
	return nil
}

func isPathy(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "path") || strings.Contains(lower, "file") || strings.Contains(lower, "dir")
}

// AttachRecursive installs argument and flag validation on root and every
// subcommand, ahead of any existing PersistentPreRunE.
func AttachRecursive(root *cobra.Command, lim Limits) {
	prev := root.PersistentPreRunE
	root.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := validateFlagsAndArgs(c, args, lim); err != nil {
			return err
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
	for _, c := range root.Commands() {
		AttachRecursive(c, lim)
	}
}

func validateFlagsAndArgs(cmd *cobra.Command, args []string, lim Limits) error {
	for i, a := range args {
		if err := ValidateString(fmt.Sprintf("arg[%d]", i), a, lim); err != nil {
			return err
		}
	}

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil {
			return
		}
		var vals []string
		switch f.Value.Type() {
		case "string":
			vals = []string{f.Value.String()}
		case "stringSlice", "stringArray":
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				vals = sv.GetSlice()
			}
		default:
			return
		}
		for i, v := range vals {
			name := fmt.Sprintf("flag --%s", f.Name)
			if len(vals) > 1 {
				name = fmt.Sprintf("%s[%d]", name, i)
			}
			if isPathy(f.Name) {
				firstErr = ValidatePath(name, v, lim)
			} else {
				firstErr = ValidateString(name, v, lim)
			}
			if firstErr != nil {
				return
			}
		}
	})
	return firstErr
}
