package domain

// DiskUsage is what the filesystem usage query reports for a mount.
type DiskUsage struct {
	Device      string
	UsedPercent int
}

func (u DiskUsage) FreePercent() int {
	return 100 - u.UsedPercent
}
