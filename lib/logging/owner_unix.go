//go:build !windows

package logging

import (
	"os"
	"os/user"
	"strconv"
)

// changeOwnerOfFile hands the log file to the account the service runs as.
// A blank owner leaves the file untouched.
func changeOwnerOfFile(name string, owner string) error {
	if owner == "" {
		return nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		return err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return err
	}
	return os.Chown(name, uid, gid)
}
