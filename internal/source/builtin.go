package source

// defaultConfig is the fallback for jurisdictions without a specific entry.
var defaultConfig = Config{
	NameColumns: []string{
		"Facility Name", "Provider Name", "Name", "Facility",
		"Nursing Facility", "NF Name", "Provider",
	},
	RateColumns: []string{
		"Rate", "Per Diem Rate", "Daily Rate", "Total Rate",
		"Per Diem", "Medicaid Rate", "Reimbursement Rate",
	},
	IDColumns: []string{
		"Provider Number", "Provider ID", "Medicaid ID",
		"Provider No", "NPI", "ID", "License",
	},
	DateColumns: []string{"Effective Date", "Rate Date", "Effective", "Period"},
	Notes:       "generic column detection",
}

// builtinConfigs covers the jurisdictions currently collected. Synonym lists
// are ordered by how the agencies actually label their files.
var builtinConfigs = map[string]Config{
	"FL": {
		NameColumns: []string{
			"Facility Name", "Provider Name", "Nursing Facility",
			"Provider", "NH Name", "NF Name",
		},
		RateColumns: []string{
			"Total Rate", "Per Diem Rate", "Daily Rate", "Rate",
			"Total Per Diem", "Medicaid Rate", "Per Diem",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "Medicaid Provider #",
			"License Number", "NPI", "Provider No",
		},
		DateColumns: []string{"Effective Date", "Rate Effective", "Eff Date"},
		Notes:       "manual download from AHCA portal",
	},
	"GA": {
		NameColumns: []string{
			"Provider Name", "Facility Name", "Facility", "Name",
			"Nursing Home Name", "NF Name",
		},
		RateColumns: []string{
			"Per Diem Rate", "Rate", "Per Diem", "Daily Rate",
			"Medicaid Rate", "Total Rate", "Reimbursement Rate",
		},
		IDColumns: []string{
			"Provider ID", "Provider Number", "Medicaid ID",
			"Provider No", "ID",
		},
		DateColumns: []string{"Effective Date", "Effective"},
		Notes:       "quarterly updates from DCH",
	},
	"IL": {
		NameColumns: []string{
			"Facility Name", "Provider Name", "Name", "Facility",
			"Nursing Facility Name", "NF Name",
		},
		RateColumns: []string{
			"Total Rate", "Per Diem Rate", "Rate", "All Rate",
			"Combined Rate", "Daily Rate", "Total",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "Medicaid Provider No",
			"Provider", "ID", "License",
		},
		DateColumns: []string{"Effective Date", "Rate Date", "Effective"},
		Notes:       "files starting with 'allrt' are the main rate files",
	},
	"IN": {
		NameColumns: []string{
			"Provider Name", "Facility Name", "Facility", "Name",
			"NF Name", "Provider",
		},
		RateColumns: []string{
			"Per Diem Rate", "Rate", "Total Rate", "Daily Rate",
			"Per Diem", "Reimbursement",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "NPI", "Provider No",
			"Indiana Provider ID", "Medicaid ID",
		},
		DateColumns: []string{"Rate Effective Date", "Effective Date", "Effective"},
		Notes:       "Provider Index Report from Myers and Stauffer",
	},
	"MS": {
		NameColumns: []string{
			"Facility Name", "Provider Name", "Name", "Facility",
			"Nursing Facility", "NF Name",
		},
		RateColumns: []string{
			"Rate", "Per Diem Rate", "Daily Rate", "Total Rate",
			"Medicaid Rate", "Per Diem",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "Medicaid ID",
			"Provider No", "ID",
		},
		DateColumns: []string{"Effective Date", "Quarter", "Period"},
		Notes:       "quarterly NF rate files",
	},
	"NY": {
		NameColumns: []string{
			"Facility Name", "Provider Name", "Nursing Home Name",
			"Name", "NH Name", "Facility",
		},
		RateColumns: []string{
			"Rate", "Per Diem Rate", "Total Rate", "Daily Rate",
			"Operating", "Capital", "Total",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "PFI", "Medicaid ID",
			"Operating Certificate", "Provider No",
		},
		DateColumns: []string{"Effective Date", "Rate Period", "Period"},
		Notes:       "manual download, annual updates",
	},
	"OH": {
		NameColumns: []string{
			"Provider Name", "Facility Name", "Facility", "Name",
			"NF Name", "Nursing Facility",
		},
		RateColumns: []string{
			"Total Rate", "Per Diem Rate", "Rate", "Daily Rate",
			"Combined Rate", "Medicaid Rate",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "Medicaid Provider Number",
			"ODM Provider ID", "Provider No",
		},
		DateColumns: []string{"Effective Date", "Rate Effective Date", "Effective"},
		Notes:       "look for NF_Rates files",
	},
	"PA": {
		NameColumns: []string{
			"Provider Name", "Facility Name", "Nursing Facility",
			"Name", "Facility", "MA Provider Name",
		},
		RateColumns: []string{
			"Per Diem Rate", "Rate", "Total Rate", "Daily Rate",
			"CHC Rate", "MA Rate", "Minimum Payment Rate", "MPR",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "MA ID", "Medicaid ID",
			"Provider No", "MPI",
		},
		DateColumns: []string{"Effective Date", "Quarter", "Period"},
		Notes:       "CHC-MPR files for quarterly rates",
	},
	"VA": {
		NameColumns: []string{
			"Skilled Nursing Facility Name", "Facility Name",
			"Provider Name", "SNF Name", "Name", "Facility",
		},
		RateColumns: []string{
			"Skilled Nursing Facility Rate", "SNF Rate", "Rate",
			"Per Diem Rate", "Daily Rate", "Total Rate",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "NPI", "Medicaid ID",
			"Provider No", "License Number",
		},
		DateColumns: []string{"Effective Date", "Rate Effective", "Period"},
		Notes:       "price-based rates files, biannual updates",
	},
	"WA": {
		NameColumns: []string{
			"Vendor Name", "Provider Name", "Facility Name", "Name",
		},
		RateColumns: []string{
			"TR", "Total Rate", "TL", "Rate", "Per Diem Rate",
		},
		IDColumns: []string{
			"License Number", "Vendor ID", "NPI", "Location ID", "Provider Number",
		},
		DateColumns: []string{"Effective Date", "Rate Effective"},
		SkipRows:    6,
		Notes:       "DSHS Current Rate Report, header on row 7",
	},
	"IA": {
		NameColumns: []string{
			"Provider Name", "Facility Name", "Name", "Facility",
		},
		// Rates live under date-valued column headers in the cumulative
		// listing, so there are no named rate or date columns.
		RateColumns: nil,
		IDColumns: []string{
			"NPI", "Provider Number", "Provider ID", "Medicaid ID",
		},
		DateColumns: nil,
		SkipRows:    8,
		DateHeaders: true,
		Notes:       "Cumulative Rate Listing, header row 9",
	},
	"CA": {
		NameColumns: []string{
			"Facility Name", "Provider Name", "Name",
		},
		RateColumns: []string{
			"Accommodation Code 01", "FS/NF-B Regular Services",
			"Rate", "Per Diem Rate", "Daily Rate",
		},
		IDColumns: []string{
			"HCAI ID", "NPI", "Provider Number", "Provider ID",
		},
		DateColumns: []string{"Rate Published", "Effective Date"},
		SkipRows:    3,
		Notes:       "CY Rates on File, header row 4",
	},
	"VT": {
		NameColumns: []string{
			"Provider Name", "Facility Name", "Name", "Facility",
		},
		RateColumns: []string{
			"Rate", "Per Diem Rate", "Daily Rate", "Total Rate",
		},
		IDColumns: []string{
			"Provider Number", "Provider ID", "NPI", "Medicaid ID",
		},
		DateColumns: []string{"Effective Date", "Period"},
		FileType:    "pdf",
		Notes:       "quarterly rate list PDF, needs text extraction upstream",
	},
}
