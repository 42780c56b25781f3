package inspector

import "fmt"

// Message is one typed Web Inspector RPC — either sent by the client or
// received from the device. Selector returns the wire `__selector` string;
// ToArgument builds the `__argument` dictionary.
type Message interface {
	Selector() string
	ToArgument() map[string]any
}

// ReportIdentifier announces this client's connection identifier to the
// device's webinspectord, the first message sent on every connection.
type ReportIdentifier struct {
	ConnectionIdentifier string
}

func (m ReportIdentifier) Selector() string { return "_rpc_reportIdentifier:" }
func (m ReportIdentifier) ToArgument() map[string]any {
	return map[string]any{wirConnectionIdentifierKey: m.ConnectionIdentifier}
}

// ForwardGetListing requests the list of inspectable pages for one
// connected application.
type ForwardGetListing struct {
	ApplicationIdentifier string
}

func (m ForwardGetListing) Selector() string { return "_rpc_forwardGetListing:" }
func (m ForwardGetListing) ToArgument() map[string]any {
	return map[string]any{wirApplicationIdentifierKey: m.ApplicationIdentifier}
}

// ForwardSocketSetup opens a debugging channel to one page.
type ForwardSocketSetup struct {
	ApplicationIdentifier string
	PageIdentifier        int
	ConnectionIdentifier  string
	SenderIdentifier      string
}

func (m ForwardSocketSetup) Selector() string { return "_rpc_forwardSocketSetup:" }
func (m ForwardSocketSetup) ToArgument() map[string]any {
	return map[string]any{
		wirApplicationIdentifierKey: m.ApplicationIdentifier,
		wirPageIdentifierKey:        m.PageIdentifier,
		wirConnectionIdentifierKey:  m.ConnectionIdentifier,
		wirSenderKey:                m.SenderIdentifier,
	}
}

// ForwardSocketData relays one Inspector protocol frame over an established
// debugging channel.
type ForwardSocketData struct {
	ApplicationIdentifier string
	PageIdentifier        int
	ConnectionIdentifier  string
	SenderIdentifier      string
	SocketData            []byte
}

func (m ForwardSocketData) Selector() string { return "_rpc_forwardSocketData:" }
func (m ForwardSocketData) ToArgument() map[string]any {
	return map[string]any{
		wirApplicationIdentifierKey: m.ApplicationIdentifier,
		wirPageIdentifierKey:        m.PageIdentifier,
		wirConnectionIdentifierKey:  m.ConnectionIdentifier,
		wirSenderKey:                m.SenderIdentifier,
		wirSocketDataKey:            m.SocketData,
	}
}

// ApplicationConnected is sent by the device when an inspectable application
// becomes available (or, encoded as a full snapshot, in reply to listing the
// currently connected applications).
type ApplicationConnected struct {
	ApplicationIdentifier     string
	ApplicationName           string
	ApplicationBundleId       string
	IsApplicationProxy        bool
	HostApplicationIdentifier string
	IsApplicationActive       bool
}

func (m ApplicationConnected) Selector() string { return "_rpc_applicationConnected:" }
func (m ApplicationConnected) ToArgument() map[string]any {
	active := 0
	if m.IsApplicationActive {
		active = 1
	}
	return map[string]any{
		wirApplicationIdentifierKey:       m.ApplicationIdentifier,
		wirApplicationNameKey:             m.ApplicationName,
		wirApplicationBundleIdentifierKey: m.ApplicationBundleId,
		wirIsApplicationProxyKey:          m.IsApplicationProxy,
		wirHostApplicationIdentifierKey:   m.HostApplicationIdentifier,
		wirIsApplicationActiveKey:         active,
	}
}

// ApplicationDisconnected is sent by the device when an inspectable
// application goes away.
type ApplicationDisconnected struct {
	ApplicationIdentifier string
}

func (m ApplicationDisconnected) Selector() string { return "_rpc_applicationDisconnected:" }
func (m ApplicationDisconnected) ToArgument() map[string]any {
	return map[string]any{wirApplicationIdentifierKey: m.ApplicationIdentifier}
}

// PageListing is the device's reply to ForwardGetListing: a dictionary of
// page id -> page metadata.
type PageListing struct {
	ApplicationIdentifier string
	Listing               map[string]PageInfo
}

// PageInfo describes one inspectable page/webview.
type PageInfo struct {
	Title string
	URL   string
}

func (m PageListing) Selector() string { return "_rpc_applicationSentListing:" }
func (m PageListing) ToArgument() map[string]any {
	listing := make(map[string]any, len(m.Listing))
	for id, page := range m.Listing {
		listing[id] = map[string]any{
			wirTitleKey: page.Title,
			wirURLKey:   page.URL,
		}
	}
	return map[string]any{
		wirApplicationIdentifierKey: m.ApplicationIdentifier,
		wirListingKey:               listing,
	}
}

// SocketDataMessage relays one Inspector protocol frame from the device back
// to the client over an established debugging channel.
type SocketDataMessage struct {
	ApplicationIdentifier string
	PageIdentifier        int
	SocketData            []byte
}

func (m SocketDataMessage) Selector() string { return "_rpc_applicationSentData:" }
func (m SocketDataMessage) ToArgument() map[string]any {
	return map[string]any{
		wirApplicationIdentifierKey: m.ApplicationIdentifier,
		wirPageIdentifierKey:        m.PageIdentifier,
		wirSocketDataKey:            m.SocketData,
	}
}

// ApplicationUpdated is sent by the device when an already-connected
// application's proxy/active flags change.
type ApplicationUpdated struct {
	ApplicationIdentifier string
	IsApplicationProxy    bool
	IsApplicationActive   bool
}

func (m ApplicationUpdated) Selector() string { return "_rpc_applicationUpdated:" }
func (m ApplicationUpdated) ToArgument() map[string]any {
	active := 0
	if m.IsApplicationActive {
		active = 1
	}
	return map[string]any{
		wirApplicationIdentifierKey: m.ApplicationIdentifier,
		wirIsApplicationProxyKey:    m.IsApplicationProxy,
		wirIsApplicationActiveKey:   active,
	}
}

// ReportConnectedApplicationList is the device's full snapshot of every
// currently connected application, keyed by application identifier.
type ReportConnectedApplicationList struct {
	ApplicationDictionary map[string]ApplicationConnected
}

func (m ReportConnectedApplicationList) Selector() string {
	return "_rpc_reportConnectedApplicationList:"
}
func (m ReportConnectedApplicationList) ToArgument() map[string]any {
	apps := make(map[string]any, len(m.ApplicationDictionary))
	for id, app := range m.ApplicationDictionary {
		apps[id] = app.ToArgument()
	}
	return map[string]any{wirApplicationDictionaryKey: apps}
}

// ReportConnectedDriverList is the device's snapshot of connected remote
// automation drivers, keyed by driver identifier.
type ReportConnectedDriverList struct {
	DriverDictionary map[string]DriverInfo
}

// DriverInfo describes one connected remote automation driver.
type DriverInfo struct {
	RemoteAutomationEnabled bool
}

func (m ReportConnectedDriverList) Selector() string { return "_rpc_reportConnectedDriverList:" }
func (m ReportConnectedDriverList) ToArgument() map[string]any {
	drivers := make(map[string]any, len(m.DriverDictionary))
	for id, d := range m.DriverDictionary {
		drivers[id] = map[string]any{wirRemoteAutomationEnabledKey: d.RemoteAutomationEnabled}
	}
	return map[string]any{wirDriverDictionaryKey: drivers}
}

// ReportSetup announces this client's simulator/device identity to the
// peer; for real devices the peer infers it from the lockdown connection,
// so this is used on the simulator direct-socket path.
type ReportSetup struct{}

func (m ReportSetup) Selector() string { return "_rpc_reportSetup:" }
func (m ReportSetup) ToArgument() map[string]any {
	return map[string]any{}
}

// decoders maps each recognized inbound selector to a builder that
// reconstructs the typed Message from its wire argument dictionary.
var decoders = map[string]func(map[string]any) (Message, error){
	"_rpc_applicationConnected:": func(arg map[string]any) (Message, error) {
		active, _ := toInt(arg[wirIsApplicationActiveKey])
		return ApplicationConnected{
			ApplicationIdentifier:     toString(arg[wirApplicationIdentifierKey]),
			ApplicationName:           toString(arg[wirApplicationNameKey]),
			ApplicationBundleId:       toString(arg[wirApplicationBundleIdentifierKey]),
			IsApplicationProxy:        toBool(arg[wirIsApplicationProxyKey]),
			HostApplicationIdentifier: toString(arg[wirHostApplicationIdentifierKey]),
			IsApplicationActive:       active != 0,
		}, nil
	},
	"_rpc_applicationDisconnected:": func(arg map[string]any) (Message, error) {
		return ApplicationDisconnected{ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey])}, nil
	},
	"_rpc_applicationSentListing:": func(arg map[string]any) (Message, error) {
		listing := map[string]PageInfo{}
		if raw, ok := arg[wirListingKey].(map[string]any); ok {
			for id, v := range raw {
				page, ok := v.(map[string]any)
				if !ok {
					continue
				}
				listing[id] = PageInfo{Title: toString(page[wirTitleKey]), URL: toString(page[wirURLKey])}
			}
		}
		return PageListing{
			ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey]),
			Listing:               listing,
		}, nil
	},
	"_rpc_applicationSentData:": func(arg map[string]any) (Message, error) {
		pageID, _ := toInt(arg[wirPageIdentifierKey])
		data, _ := arg[wirSocketDataKey].([]byte)
		return SocketDataMessage{
			ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey]),
			PageIdentifier:        pageID,
			SocketData:            data,
		}, nil
	},
	"_rpc_reportIdentifier:": func(arg map[string]any) (Message, error) {
		return ReportIdentifier{ConnectionIdentifier: toString(arg[wirConnectionIdentifierKey])}, nil
	},
	"_rpc_forwardGetListing:": func(arg map[string]any) (Message, error) {
		return ForwardGetListing{ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey])}, nil
	},
	"_rpc_forwardSocketSetup:": func(arg map[string]any) (Message, error) {
		pageID, _ := toInt(arg[wirPageIdentifierKey])
		return ForwardSocketSetup{
			ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey]),
			PageIdentifier:        pageID,
			ConnectionIdentifier:  toString(arg[wirConnectionIdentifierKey]),
			SenderIdentifier:      toString(arg[wirSenderKey]),
		}, nil
	},
	"_rpc_forwardSocketData:": func(arg map[string]any) (Message, error) {
		pageID, _ := toInt(arg[wirPageIdentifierKey])
		data, _ := arg[wirSocketDataKey].([]byte)
		return ForwardSocketData{
			ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey]),
			PageIdentifier:        pageID,
			ConnectionIdentifier:  toString(arg[wirConnectionIdentifierKey]),
			SenderIdentifier:      toString(arg[wirSenderKey]),
			SocketData:            data,
		}, nil
	},
	"_rpc_applicationUpdated:": func(arg map[string]any) (Message, error) {
		active, _ := toInt(arg[wirIsApplicationActiveKey])
		return ApplicationUpdated{
			ApplicationIdentifier: toString(arg[wirApplicationIdentifierKey]),
			IsApplicationProxy:    toBool(arg[wirIsApplicationProxyKey]),
			IsApplicationActive:   active != 0,
		}, nil
	},
	"_rpc_reportConnectedApplicationList:": func(arg map[string]any) (Message, error) {
		apps := map[string]ApplicationConnected{}
		if raw, ok := arg[wirApplicationDictionaryKey].(map[string]any); ok {
			for id, v := range raw {
				entry, ok := v.(map[string]any)
				if !ok {
					continue
				}
				decoded, err := decode("_rpc_applicationConnected:", entry)
				if err != nil {
					continue
				}
				apps[id] = decoded.(ApplicationConnected)
			}
		}
		return ReportConnectedApplicationList{ApplicationDictionary: apps}, nil
	},
	"_rpc_reportConnectedDriverList:": func(arg map[string]any) (Message, error) {
		drivers := map[string]DriverInfo{}
		if raw, ok := arg[wirDriverDictionaryKey].(map[string]any); ok {
			for id, v := range raw {
				entry, ok := v.(map[string]any)
				if !ok {
					continue
				}
				drivers[id] = DriverInfo{RemoteAutomationEnabled: toBool(entry[wirRemoteAutomationEnabledKey])}
			}
		}
		return ReportConnectedDriverList{DriverDictionary: drivers}, nil
	},
	"_rpc_reportSetup:": func(arg map[string]any) (Message, error) {
		return ReportSetup{}, nil
	},
}

// decode reconstructs a typed Message for selector/argument, the inverse of
// Message.Selector/ToArgument.
func decode(selector string, argument map[string]any) (Message, error) {
	build, ok := decoders[selector]
	if !ok {
		return nil, fmt.Errorf("inspector: unrecognized selector %q", selector)
	}
	return build(argument)
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("inspector: value %v is not numeric", v)
	}
}
