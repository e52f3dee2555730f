package sqlassets

import _ "embed"

//go:embed schema/signature_requests.sql
var SignatureRequestsSQL string

//go:embed schema/agency_settings.sql
var AgencySettingsSQL string
