package counter

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory exclusive flock on a sibling lock file. flock locks belong
// to the open file description, so a second lock of the same path fails even inside
// the same process.
type fileLock struct {
	f *os.File
}

func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (p *fileLock) unlock() error {
	err := unix.Flock(int(p.f.Fd()), unix.LOCK_UN)
	if closeErr := p.f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
