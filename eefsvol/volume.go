// Package eefsvol is the higher-level, multi-device/multi-volume
// collaborator layered on top of the single-volume engine in eefs. Where
// eefs.InodeTable addresses exactly one mounted region, this package lets a
// caller register several named devices (each with its own base address on
// a shared medium), mount them under short path prefixes, and address files
// by a single qualified path instead of juggling *eefs.InodeTable values by
// hand.
//
// It is a wrapper, not a reimplementation: every operation here validates
// its own arguments (device/mount-point naming and uniqueness, path
// splitting) and then forwards to the corresponding eefs.Engine method on
// the resolved InodeTable.
package eefsvol

import (
	"encoding/binary"
	"strings"
	"sync"

	"golang.org/x/net/context"

	"github.com/nasa/eefs"
	"github.com/nasa/eefs/medium"
)

// Compile-time capacity constants, carried over from the original driver's
// static DeviceTable/VolumeTable arrays.
const (
	// MaxDevices is the size of the device table.
	MaxDevices = 2

	// MaxVolumes is the size of the mounted-volume table.
	MaxVolumes = 2

	// MaxDeviceNameSize is the width of a device name, including the
	// leading '/' the original requires.
	MaxDeviceNameSize = 16

	// MaxMountPointSize is the width of a mount point, including the
	// leading '/' the original requires.
	MaxMountPointSize = 16

	// MaxPathSize is the width of a fully qualified "/mount/file" path.
	MaxPathSize = 64
)

type device struct {
	inUse      bool
	name       string
	baseAddr   int64
	inodeTable *eefs.InodeTable
}

type volume struct {
	inUse      bool
	deviceName string
	mountPoint string
}

// Manager is the process-wide device and mount-point table. It owns no
// medium or descriptor state of its own; every file operation it exposes
// resolves a path to an *eefs.InodeTable and forwards to engine.
type Manager struct {
	engine *eefs.Engine
	m      medium.Medium

	mu sync.Mutex

	// GUARDED_BY(mu)
	devices [MaxDevices]device

	// GUARDED_BY(mu)
	volumes [MaxVolumes]volume
}

// NewManager returns a Manager that mounts volumes against m through
// engine.
func NewManager(engine *eefs.Engine, m medium.Medium) *Manager {
	return &Manager{engine: engine, m: m}
}

func validDeviceOrMountName(name string, maxSize int) bool {
	return name != "" && len(name) < maxSize && name[0] == '/'
}

// InitFS registers deviceName at baseAddress, calling through to
// eefs.Engine.InitFS to mount its FAT. deviceName and baseAddress must each
// be unique across the table; both uniqueness checks mirror
// EEFS_InitFS's "DeviceName and BaseAddress must be unique" rule in the
// original standalone driver. order is the on-medium byte order of the
// volume at this base address — devices sharing one physical medium are
// not required to share a byte order, since each was potentially imaged
// by a separate cross-build of the image builder.
func (v *Manager) InitFS(ctx context.Context, deviceName string, order binary.ByteOrder, baseAddress int64) eefs.Errno {
	if !validDeviceOrMountName(deviceName, MaxDeviceNameSize) {
		return eefs.InvalidArgument
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.devices {
		if v.devices[i].inUse && (v.devices[i].name == deviceName || v.devices[i].baseAddr == baseAddress) {
			return eefs.Error
		}
	}

	slot := -1
	for i := range v.devices {
		if !v.devices[i].inUse {
			slot = i
			break
		}
	}
	if slot < 0 {
		return eefs.Error
	}

	table, err := v.engine.InitFS(v.m, order, baseAddress)
	if err.IsError() {
		return eefs.Error
	}

	v.devices[slot] = device{inUse: true, name: deviceName, baseAddr: baseAddress, inodeTable: table}
	return eefs.Success
}

// Mount maps mountPoint to an already-initialized deviceName. The device
// must already have been registered with InitFS; the mount point must not
// already be in use.
func (v *Manager) Mount(deviceName, mountPoint string) eefs.Errno {
	if !validDeviceOrMountName(deviceName, MaxDeviceNameSize) || !validDeviceOrMountName(mountPoint, MaxMountPointSize) {
		return eefs.InvalidArgument
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.findDeviceLocked(deviceName) < 0 {
		return eefs.Error
	}
	if v.findVolumeLocked(mountPoint) >= 0 {
		return eefs.Error
	}

	slot := -1
	for i := range v.volumes {
		if !v.volumes[i].inUse {
			slot = i
			break
		}
	}
	if slot < 0 {
		return eefs.Error
	}

	v.volumes[slot] = volume{inUse: true, deviceName: deviceName, mountPoint: mountPoint}
	return eefs.Success
}

// UnMount releases mountPoint. It fails with DeviceIsBusy if the device's
// volume still has open file or directory descriptors, mirroring
// EEFS_UnMount's EEFS_LibHasOpenFiles/EEFS_LibHasOpenDir guard — here
// expressed as a FreeFS dry run that is simply not committed, since the
// inode table for a device outlives any one mount point.
func (v *Manager) UnMount(mountPoint string) eefs.Errno {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := v.findVolumeLocked(mountPoint)
	if idx < 0 {
		return eefs.Error
	}

	devIdx := v.findDeviceLocked(v.volumes[idx].deviceName)
	if devIdx >= 0 && v.engine.HasOpenDescriptors(v.devices[devIdx].inodeTable) {
		return eefs.DeviceIsBusy
	}

	v.volumes[idx] = volume{}
	return eefs.Success
}

func (v *Manager) findDeviceLocked(name string) int {
	for i := range v.devices {
		if v.devices[i].inUse && v.devices[i].name == name {
			return i
		}
	}
	return -1
}

func (v *Manager) findVolumeLocked(mountPoint string) int {
	for i := range v.volumes {
		if v.volumes[i].inUse && v.volumes[i].mountPoint == mountPoint {
			return i
		}
	}
	return -1
}

// splitPath splits a qualified path of the form "/mount/file" into its
// mount point and filename, the way EEFS_SplitPath does: the mount point
// is everything up to (not including) the second '/', the filename is
// everything after it.
func splitPath(path string) (mountPoint, filename string, ok bool) {
	if len(path) == 0 || len(path) >= MaxPathSize || path[0] != '/' {
		return "", "", false
	}
	rest := path[1:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", "", false
	}
	return path[:1+slash], rest[slash+1:], true
}

// resolveLocked splits path and maps its mount point to the device's
// *eefs.InodeTable. Callers must hold v.mu.
func (v *Manager) resolveLocked(path string) (*eefs.InodeTable, string, eefs.Errno) {
	mountPoint, filename, ok := splitPath(path)
	if !ok {
		return nil, "", eefs.InvalidArgument
	}

	volIdx := v.findVolumeLocked(mountPoint)
	if volIdx < 0 {
		return nil, "", eefs.FileNotFound
	}

	devIdx := v.findDeviceLocked(v.volumes[volIdx].deviceName)
	if devIdx < 0 {
		return nil, "", eefs.FileNotFound
	}

	return v.devices[devIdx].inodeTable, filename, eefs.Success
}

// Open splits path into a mount point and filename and forwards to
// eefs.Engine.Open on the resolved device.
func (v *Manager) Open(ctx context.Context, path string, flags eefs.OpenFlags, attributes uint32) int {
	v.mu.Lock()
	table, filename, err := v.resolveLocked(path)
	v.mu.Unlock()
	if err.IsError() {
		return int(err)
	}
	return v.engine.Open(ctx, table, filename, flags, attributes)
}

// Creat splits path and forwards to eefs.Engine.Creat.
func (v *Manager) Creat(ctx context.Context, path string, attributes uint32) int {
	v.mu.Lock()
	table, filename, err := v.resolveLocked(path)
	v.mu.Unlock()
	if err.IsError() {
		return int(err)
	}
	return v.engine.Creat(ctx, table, filename, attributes)
}

// Remove splits path and forwards to eefs.Engine.Remove.
func (v *Manager) Remove(ctx context.Context, path string) eefs.Errno {
	v.mu.Lock()
	table, filename, err := v.resolveLocked(path)
	v.mu.Unlock()
	if err.IsError() {
		return err
	}
	return v.engine.Remove(ctx, table, filename)
}

// Rename requires oldPath and newPath to share a mount point — this engine
// has no cross-volume move, the same restriction EEFS_Rename documents —
// and forwards to eefs.Engine.Rename.
func (v *Manager) Rename(ctx context.Context, oldPath, newPath string) eefs.Errno {
	v.mu.Lock()
	oldMount, oldName, ok1 := splitPath(oldPath)
	newMount, newName, ok2 := splitPath(newPath)
	if !ok1 || !ok2 {
		v.mu.Unlock()
		return eefs.InvalidArgument
	}
	if oldMount != newMount {
		v.mu.Unlock()
		return eefs.Error
	}
	table, _, err := v.resolveLocked(oldPath)
	v.mu.Unlock()
	if err.IsError() {
		return err
	}
	return v.engine.Rename(ctx, table, oldName, newName)
}

// Stat splits path and forwards to eefs.Engine.Stat.
func (v *Manager) Stat(ctx context.Context, path string) (eefs.FileStat, eefs.Errno) {
	v.mu.Lock()
	table, filename, err := v.resolveLocked(path)
	v.mu.Unlock()
	if err.IsError() {
		return eefs.FileStat{}, err
	}
	return v.engine.Stat(ctx, table, filename)
}

// OpenDir resolves mountPoint to a device and forwards to
// eefs.Engine.OpenDir, mirroring EEFS_OpenDir, which takes a bare mount
// point rather than a "/mount/file" path since directory iteration has no
// filename component.
func (v *Manager) OpenDir(ctx context.Context, mountPoint string) eefs.Errno {
	if !validDeviceOrMountName(mountPoint, MaxMountPointSize) {
		return eefs.InvalidArgument
	}

	v.mu.Lock()
	volIdx := v.findVolumeLocked(mountPoint)
	if volIdx < 0 {
		v.mu.Unlock()
		return eefs.FileNotFound
	}
	devIdx := v.findDeviceLocked(v.volumes[volIdx].deviceName)
	if devIdx < 0 {
		v.mu.Unlock()
		return eefs.FileNotFound
	}
	table := v.devices[devIdx].inodeTable
	v.mu.Unlock()

	return v.engine.OpenDir(ctx, table)
}

// SetFileAttributes splits path and forwards to
// eefs.Engine.SetFileAttributes.
func (v *Manager) SetFileAttributes(ctx context.Context, path string, attributes uint32) eefs.Errno {
	v.mu.Lock()
	table, filename, err := v.resolveLocked(path)
	v.mu.Unlock()
	if err.IsError() {
		return err
	}
	return v.engine.SetFileAttributes(ctx, table, filename, attributes)
}
