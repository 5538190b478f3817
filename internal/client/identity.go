package client

import (
	"hash/fnv"
	"strconv"

	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// InvalidClientID marks an unknown or underivable client identity.
// Valid identities are always positive.
const InvalidClientID = -1

// ClientID derives the stable client identity for one module instance.
//
// The first instance of a module hashes from the module ID alone; later
// instances hash from "{instanceID}@{moduleID}". This asymmetry is a
// compatibility contract: identities of single-instance deployments must not
// change when multi-instance support is introduced. The derivation is pure,
// so callable-set computation can name clients that are not yet created.
func ClientID(moduleID string, instanceID modulestore.InstanceID) int {
	h := fnv.New32a()
	if instanceID > modulestore.FirstInstanceID {
		h.Write([]byte(strconv.FormatUint(uint64(instanceID), 10)))
		h.Write([]byte("@"))
	}
	h.Write([]byte(moduleID))

	id := int(int32(h.Sum32()))
	if id < 0 {
		id = -id
	}
	return id
}
