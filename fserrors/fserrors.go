// Package fserrors defines the error kinds shared by every layer of simfs,
// from the block device up through the dispatcher.
package fserrors

import "fmt"

// Kind identifies the class of failure a layer encountered. Lower layers
// return the most specific kind they know; higher layers may wrap a kind
// with more context but never discard it.
type Kind int

const (
	Success Kind = iota
	DiskNotFound
	DiskAlreadyExists
	InvalidBlock
	NoFreeBlocks
	NoFreeInodes
	FileNotFound
	FileAlreadyExists
	InvalidPath
	PermissionDenied
	DiskFull
	IOError
	InvalidInode
	DirectoryNotEmpty
	NotADirectory
	IsADirectory
	InvalidFileDescriptor
	FileAlreadyOpen
	FileNotOpen
	InvalidArgument
	OutOfMemory
	BufferOverflow
	UnknownCommand
	InvalidSyntax
	MountFailed
	UnmountFailed
	FormatFailed
	AlreadyMounted
	NotMounted
)

var names = map[Kind]string{
	Success:               "Success",
	DiskNotFound:          "DiskNotFound",
	DiskAlreadyExists:     "DiskAlreadyExists",
	InvalidBlock:          "InvalidBlock",
	NoFreeBlocks:          "NoFreeBlocks",
	NoFreeInodes:          "NoFreeInodes",
	FileNotFound:          "FileNotFound",
	FileAlreadyExists:     "FileAlreadyExists",
	InvalidPath:           "InvalidPath",
	PermissionDenied:      "PermissionDenied",
	DiskFull:              "DiskFull",
	IOError:               "IOError",
	InvalidInode:          "InvalidInode",
	DirectoryNotEmpty:     "DirectoryNotEmpty",
	NotADirectory:         "NotADirectory",
	IsADirectory:          "IsADirectory",
	InvalidFileDescriptor: "InvalidFileDescriptor",
	FileAlreadyOpen:       "FileAlreadyOpen",
	FileNotOpen:           "FileNotOpen",
	InvalidArgument:       "InvalidArgument",
	OutOfMemory:           "OutOfMemory",
	BufferOverflow:        "BufferOverflow",
	UnknownCommand:        "UnknownCommand",
	InvalidSyntax:         "InvalidSyntax",
	MountFailed:           "MountFailed",
	UnmountFailed:         "UnmountFailed",
	FormatFailed:          "FormatFailed",
	AlreadyMounted:        "AlreadyMounted",
	NotMounted:            "NotMounted",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the structured error value returned by every simfs layer.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "InodeStore.AllocateInode"
	Path string // the path or other subject, if any
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare error of the given kind.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// NewPath builds an error of the given kind about a specific path.
func NewPath(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap attaches a new kind and op to an underlying cause without losing it.
func Wrap(err error, kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapPath is Wrap plus a path for context.
func WrapPath(err error, kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			if fe.Kind == kind {
				return true
			}
			err = fe.Err
			continue
		}
		break
	}
	return false
}

// KindOf extracts the Kind from err, or Success if err is nil, or IOError if
// err is a plain (non-fserrors) error.
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	if fe, ok := err.(*Error); ok {
		return fe.Kind
	}
	return IOError
}
