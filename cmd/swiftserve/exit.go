package main

import (
	"github.com/robert-malhotra/swiftserve/apierr"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitNotFound    = 3
	exitBadRequest  = 4
	exitUnencodable = 5
)

// exitCode maps an error to the process exit code by kind.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch apierr.KindOf(err) {
	case apierr.DatasetNotFound, apierr.DatasetPathInvalid, apierr.FieldNotFound:
		return exitNotFound
	case apierr.MaskRequired, apierr.MaskOutOfBounds, apierr.ColumnOutOfRange,
		apierr.InvalidDType, apierr.InvalidArrayShape:
		return exitBadRequest
	case apierr.MetadataSerialization, apierr.UnencodableValue, apierr.UnitConversion:
		return exitUnencodable
	default:
		return exitFailure
	}
}
