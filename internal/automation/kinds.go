package automation

import (
	"fmt"

	"casework/internal/fileutil"
	"casework/internal/services"
)

type postCheck func(desc Descriptor, localPath string) error

// postChecks holds the contract each kind must satisfy after a zero exit.
var postChecks = map[Kind]postCheck{
	KindUnpack: checkUnpackOutput,
	KindCustom: func(Descriptor, string) error { return nil },
}

// UnpackOutputDir is where an unpack automation must leave its output: the
// local target's sibling directory named without the extension.
func UnpackOutputDir(localPath string) string {
	return fileutil.StripExt(localPath)
}

func checkUnpackOutput(desc Descriptor, localPath string) error {
	dir := UnpackOutputDir(localPath)
	ok, err := fileutil.NonEmptyDir(dir)
	if err != nil {
		return services.Wrap(services.ErrAccess, "automation", "check output", dir, err)
	}
	if !ok {
		return services.Wrap(services.ErrToolFailure, "automation", "check output",
			fmt.Sprintf("%s exited 0 but left no output in %s", desc.Name, dir), nil)
	}
	return nil
}
