package wasm

import (
	"fmt"
	"sort"
	"strings"
)

// Features is a bitset of enabled Wasm proposals. Iota starts at 1 because a bitset cannot use zero as a flag.
type Features uint64

const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSignExtensionOps
	FeatureMultiValue
	FeatureNonTrappingFloatToIntConversion
	FeatureBulkMemoryOperations
	FeatureReferenceTypes
	FeatureSIMD
	FeatureMultiMemory
	FeatureExtendedConst
)

// Features20220419 matches the proposals that reached phase 4 by that date, the baseline most engines default to.
const Features20220419 = FeatureMutableGlobal | FeatureSignExtensionOps | FeatureMultiValue |
	FeatureNonTrappingFloatToIntConversion | FeatureBulkMemoryOperations | FeatureReferenceTypes | FeatureSIMD

// Get reports whether a single feature flag is set.
func (f Features) Get(flag Features) bool {
	return f&flag != 0
}

// Set returns f with flag set or cleared according to val.
func (f Features) Set(flag Features, val bool) Features {
	if val {
		return f | flag
	}
	return f &^ flag
}

// Require returns an error naming the first disabled flag in flags, or nil if all are enabled.
func (f Features) Require(flags Features) error {
	for flag := Features(1); flag != 0; flag <<= 1 {
		if flags.Get(flag) && !f.Get(flag) {
			return fmt.Errorf("feature %q is disabled", flag.String())
		}
		if flag == 1<<63 {
			break
		}
	}
	return nil
}

var featureNames = map[Features]string{
	FeatureMutableGlobal:                   "mutable-global",
	FeatureSignExtensionOps:                "sign-extension-ops",
	FeatureMultiValue:                      "multi-value",
	FeatureNonTrappingFloatToIntConversion: "nontrapping-float-to-int-conversion",
	FeatureBulkMemoryOperations:            "bulk-memory-operations",
	FeatureReferenceTypes:                  "reference-types",
	FeatureSIMD:                            "simd",
	FeatureMultiMemory:                     "multi-memory",
	FeatureExtendedConst:                   "extended-const",
}

// String renders the set flags as a sorted, pipe-joined list, e.g. "multi-value|mutable-global".
func (f Features) String() string {
	var names []string
	for flag, name := range featureNames {
		if f.Get(flag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
