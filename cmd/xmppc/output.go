// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"io"

	"github.com/fatih/color"
)

var (
	red   = color.New(color.FgRed).FprintfFunc()
	blue  = color.New(color.FgBlue).FprintfFunc()
	green = color.New(color.FgGreen).FprintfFunc()
)

func errorMsg(w io.Writer, format string, a ...interface{}) {
	red(w, "[!] "+format+"\n", a...)
}

func infoMsg(w io.Writer, format string, a ...interface{}) {
	blue(w, "[+] "+format+"\n", a...)
}

func stanzaMsg(w io.Writer, format string, a ...interface{}) {
	green(w, "<< "+format+"\n", a...)
}
