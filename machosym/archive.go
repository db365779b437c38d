package machosym

import (
	"bytes"
	"fmt"
	"io"

	"github.com/blakesmith/ar"

	"github.com/val35777/samply/shared"
)

// readArchiveMembers reads every member of a Unix .a archive into memory,
// keyed by member name. It implements the "intersecting the wanted-member
// set with the archive's observed members" half of §4.5: the caller
// subsets this map down to the members a reference actually asked for.
func readArchiveMembers(data []byte) (map[string][]byte, error) {
	r := ar.NewReader(bytes.NewReader(data))
	members := make(map[string][]byte)
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive directory: %w", err)
		}
		buf := make([]byte, hdr.Size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("reading archive member %s: %w", hdr.Name, err)
		}
		members[hdr.Name] = buf
	}
	return members, nil
}

// readAll pulls the full contents of a ByteRange into memory.
func readAll(b shared.ByteRange) ([]byte, error) {
	return b.ReadBytesAt(0, b.Len())
}
