package rshell

import "github.com/google/shlex"

func shlexSplit(line string) ([]string, error) {
	return shlex.Split(line)
}
