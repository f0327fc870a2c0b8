package cpu

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// procReadFile allows tests to stub reading /proc/PID/comm.
var procReadFile = os.ReadFile

func commForPID(mount string, pid int, cache map[int]string) string {
	if pid <= 0 {
		return "idle"
	}
	if name, ok := cache[pid]; ok {
		return name
	}
	path := filepath.Join(mount, strconv.Itoa(pid), "comm")
	data, err := procReadFile(path)
	if err != nil {
		name := fmt.Sprintf("pid-%d", pid)
		cache[pid] = name
		return name
	}
	comm := strings.TrimSpace(string(data))
	if comm == "" {
		comm = fmt.Sprintf("pid-%d", pid)
	}
	cache[pid] = comm
	return comm
}
