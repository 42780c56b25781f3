package inspector

// WIR* keys used inside a message's `__argument` dictionary. The wire name is
// the UpperCamel form of the Go constant in every case except wirURLKey,
// which keeps Apple's "URL" casing rather than "Url".
const (
	wirApplicationBundleIdentifierKey = "WIRApplicationBundleIdentifierKey"
	wirApplicationDictionaryKey       = "WIRApplicationDictionaryKey"
	wirApplicationIdentifierKey       = "WIRApplicationIdentifierKey"
	wirApplicationNameKey             = "WIRApplicationNameKey"
	wirAutomaticallyPause             = "WIRAutomaticallyPause"
	wirConnectionIdentifierKey        = "WIRConnectionIdentifierKey"
	wirDestinationKey                 = "WIRDestinationKey"
	wirDriverDictionaryKey            = "WIRDriverDictionaryKey"
	wirHostApplicationIdentifierKey   = "WIRHostApplicationIdentifierKey"
	wirIsApplicationActiveKey         = "WIRIsApplicationActiveKey"
	wirIsApplicationProxyKey          = "WIRIsApplicationProxyKey"
	wirIsApplicationReadyKey          = "WIRIsApplicationReadyKey"
	wirListingKey                     = "WIRListingKey"
	wirMessageDataKey                 = "WIRMessageDataKey"
	wirPageIdentifierKey              = "WIRPageIdentifierKey"
	wirRemoteAutomationEnabledKey     = "WIRRemoteAutomationEnabledKey"
	wirSenderKey                      = "WIRSenderKey"
	wirSimulatorBuildKey              = "WIRSimulatorBuildKey"
	wirSimulatorNameKey               = "WIRSimulatorNameKey"
	wirSimulatorProductVersionKey     = "WIRSimulatorProductVersionKey"
	wirSocketDataKey                  = "WIRSocketDataKey"
	wirTitleKey                       = "WIRTitleKey"
	wirTypeKey                        = "WIRTypeKey"
	wirURLKey                         = "WIRURLKey"
)

// allWIRKeys lists every recognized wire key, used by the round-trip test
// asserting messageKeyForString(k) returns k for all of them.
var allWIRKeys = []string{
	wirApplicationBundleIdentifierKey,
	wirApplicationDictionaryKey,
	wirApplicationIdentifierKey,
	wirApplicationNameKey,
	wirAutomaticallyPause,
	wirConnectionIdentifierKey,
	wirDestinationKey,
	wirDriverDictionaryKey,
	wirHostApplicationIdentifierKey,
	wirIsApplicationActiveKey,
	wirIsApplicationProxyKey,
	wirIsApplicationReadyKey,
	wirListingKey,
	wirMessageDataKey,
	wirPageIdentifierKey,
	wirRemoteAutomationEnabledKey,
	wirSenderKey,
	wirSimulatorBuildKey,
	wirSimulatorNameKey,
	wirSimulatorProductVersionKey,
	wirSocketDataKey,
	wirTitleKey,
	wirTypeKey,
	wirURLKey,
}

// messageKeyForString reports whether s is a recognized WIR* key, mirroring
// it back unchanged — the registry is a validated set, not a translation.
func messageKeyForString(s string) (string, bool) {
	for _, k := range allWIRKeys {
		if k == s {
			return k, true
		}
	}
	return "", false
}
