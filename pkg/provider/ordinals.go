package provider

// Method ordinals for the parameter-provider proxy/stub pair.
const (
	OrdinalGetParameterValues uint32 = iota
	OrdinalSetParameterValues
	OrdinalSetParameterValuesConnectionAware
	OrdinalInvokeMethod
	OrdinalCreateParameterUploadID
	OrdinalRemoveParameterUploadID
)

// Method ordinals for the file-provider proxy/stub pair. A separate space
// from the parameter ordinals since the two interfaces are never installed
// on the same object id.
const (
	OrdinalFileRead uint32 = iota
	OrdinalFileWrite
	OrdinalFileGetInfo
	OrdinalFileCreate
)
