package state

import "path/filepath"

// Paths is the on-disk layout of a deployment directory.
type Paths struct {
	Root   string
	Status string
	Create string
	Lock   string
	Data   string
}

func PathsFor(root string) Paths {
	return Paths{
		Root:   root,
		Status: filepath.Join(root, "status"),
		Create: filepath.Join(root, "create.yaml"),
		Lock:   filepath.Join(root, "LOCK"),
		Data:   filepath.Join(root, "data"),
	}
}
