package main

import "strconv"

// optionalIntFlag is a pflag.Value that records whether it was ever set,
// distinguishing "flag omitted" from "flag set to its zero value" for
// job spec fields where nil (falls back to config) differs from 0.
type optionalIntFlag struct {
	dest *int
	set  *bool
}

func newOptionalIntFlag(dest *int, set *bool) *optionalIntFlag {
	return &optionalIntFlag{dest: dest, set: set}
}

func (f *optionalIntFlag) String() string {
	if f.dest == nil {
		return ""
	}
	return strconv.Itoa(*f.dest)
}

func (f *optionalIntFlag) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f.dest = n
	*f.set = true
	return nil
}

func (f *optionalIntFlag) Type() string { return "int" }
