package backend

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// ValidateDeviceRegistration checks a client-supplied DeviceRegistration
// against its validate tags before the daemon accepts it.
func ValidateDeviceRegistration(d DeviceRegistration) error {
	return validate.Struct(d)
}

// ValidateProviderRef checks a client-supplied ProviderRef.
func ValidateProviderRef(ref ProviderRef) error {
	return validate.Struct(ref)
}

// ValidateFileProviderContext checks a client-supplied FileProviderContext.
func ValidateFileProviderContext(ctx FileProviderContext) error {
	return validate.Struct(ctx)
}
