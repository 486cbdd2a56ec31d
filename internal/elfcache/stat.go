package elfcache

import "os"

func statToken(path string) (genToken, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return genToken{}, err
	}
	return genToken{size: fi.Size(), modTime: fi.ModTime().UnixNano()}, nil
}
