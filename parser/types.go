package parser

import "encoding/json"

// feed is the NVD JSON 1.0 document layout. Only the fields needed to build
// dependencies are declared.
type feed struct {
	CVEItems *[]json.RawMessage `json:"CVE_Items"`
}

type cveItem struct {
	CVE    cve    `json:"cve"`
	Impact impact `json:"impact"`
}

type cve struct {
	Affects struct {
		Vendor struct {
			VendorData []vendorData `json:"vendor_data"`
		} `json:"vendor"`
	} `json:"affects"`
}

type vendorData struct {
	VendorName string `json:"vendor_name"`
	Product    struct {
		ProductData []productData `json:"product_data"`
	} `json:"product"`
}

type productData struct {
	ProductName string `json:"product_name"`
	Version     struct {
		VersionData []versionData `json:"version_data"`
	} `json:"version"`
}

type versionData struct {
	VersionValue string `json:"version_value"`
}

type impact struct {
	BaseMetricV2 *struct {
		CVSSV2 *struct {
			BaseScore *float64 `json:"baseScore"`
		} `json:"cvssV2"`
	} `json:"baseMetricV2"`
}
