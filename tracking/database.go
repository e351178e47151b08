package tracking

import (
	"image"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReferenceImage is a known planar image the tracker searches for. Once the
// owning database is locked, a reference image is immutable; training attaches
// the keypoint set detected on it.
type ReferenceImage struct {
	// Name uniquely identifies the image within its database.
	Name string

	image  image.Image
	aspect float64

	// trained keypoints, positions in NIS. Populated by the training state.
	keypoints []Keypoint
}

// NewReferenceImage wraps pixel data as a reference image. An empty name is
// replaced with a generated one.
func NewReferenceImage(name string, img image.Image) (*ReferenceImage, error) {
	if img == nil {
		return nil, errors.Wrap(ErrIllegalArgument, "reference image has no pixel source")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Wrapf(ErrIllegalArgument, "reference image %q has empty bounds", name)
	}
	if name == "" {
		name = "target-" + uuid.New().String()
	}
	return &ReferenceImage{
		Name:   name,
		image:  img,
		aspect: float64(b.Dx()) / float64(b.Dy()),
	}, nil
}

// Image returns the pixel data handle.
func (r *ReferenceImage) Image() image.Image {
	return r.image
}

// AspectRatio returns width/height of the pixel data.
func (r *ReferenceImage) AspectRatio() float64 {
	return r.aspect
}

// Size returns the pixel dimensions.
func (r *ReferenceImage) Size() (int, int) {
	b := r.image.Bounds()
	return b.Dx(), b.Dy()
}

// ReferenceImageDatabase is a named, capacity-bounded, lockable collection of
// reference images. Iteration order is insertion order. Once locked, no
// further images can be added; the tracker locks the database when it starts.
type ReferenceImageDatabase struct {
	images   []*ReferenceImage
	byName   map[string]*ReferenceImage
	capacity int
	locked   bool
}

// NewReferenceImageDatabase creates an empty database with the given capacity.
func NewReferenceImageDatabase(capacity int) *ReferenceImageDatabase {
	if capacity < 1 {
		capacity = 1
	}
	return &ReferenceImageDatabase{
		byName:   make(map[string]*ReferenceImage),
		capacity: capacity,
	}
}

// Add validates and stores the given images. It fails with ErrIllegalArgument
// on a duplicate name or invalid image, and with ErrIllegalOperation if the
// database is locked or the images would exceed its capacity. On failure
// nothing is stored.
func (db *ReferenceImageDatabase) Add(images ...*ReferenceImage) error {
	if db.locked {
		return ErrDatabaseLocked
	}
	if len(db.images)+len(images) > db.capacity {
		return errors.Wrapf(ErrDatabaseFull, "capacity %d, have %d, adding %d",
			db.capacity, len(db.images), len(images))
	}

	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		if img == nil || img.image == nil {
			return errors.Wrap(ErrIllegalArgument, "nil reference image")
		}
		if _, ok := db.byName[img.Name]; ok {
			return errors.Wrapf(ErrDuplicateName, "%q", img.Name)
		}
		if _, ok := seen[img.Name]; ok {
			return errors.Wrapf(ErrDuplicateName, "%q", img.Name)
		}
		seen[img.Name] = struct{}{}
	}

	for _, img := range images {
		db.images = append(db.images, img)
		db.byName[img.Name] = img
	}
	return nil
}

// Lock freezes the database. Locking is one-way.
func (db *ReferenceImageDatabase) Lock() {
	db.locked = true
}

// Locked reports whether the database has been locked.
func (db *ReferenceImageDatabase) Locked() bool {
	return db.locked
}

// Count returns the number of stored images.
func (db *ReferenceImageDatabase) Count() int {
	return len(db.images)
}

// Capacity returns the maximum number of images the database accepts.
func (db *ReferenceImageDatabase) Capacity() int {
	return db.capacity
}

// SetCapacity updates the capacity. It fails with ErrIllegalOperation if the
// database is locked, and with ErrIllegalArgument if the new capacity is below
// the current count.
func (db *ReferenceImageDatabase) SetCapacity(capacity int) error {
	if db.locked {
		return ErrDatabaseLocked
	}
	if capacity < len(db.images) {
		return errors.Wrapf(ErrIllegalArgument, "capacity %d below current count %d", capacity, len(db.images))
	}
	db.capacity = capacity
	return nil
}

// Get returns the image stored under name, or nil.
func (db *ReferenceImageDatabase) Get(name string) *ReferenceImage {
	return db.byName[name]
}

// Images returns the stored images in insertion order. The returned slice is
// a copy; the images themselves are shared.
func (db *ReferenceImageDatabase) Images() []*ReferenceImage {
	out := make([]*ReferenceImage, len(db.images))
	copy(out, db.images)
	return out
}
