// Package mapper holds the pure record-mapping functions that turn raw
// iNaturalist shapes plus a resolved taxon lookup into Darwin Core rows.
// Every function here is total and side-effect free: no I/O, no clocks,
// no package-level mutable state. The column tables in this file are the
// single source of truth for both CSV header order and meta.xml field
// order — the archive package's meta.xml generator and this package must
// never disagree on ordering.
package mapper

// Field pairs a Darwin Core term's column name with its full term URI,
// as required by meta.xml's <field term="..."/> attribute.
type Field struct {
	Name string
	Term string
}

const dwcTerm = "http://rs.tdwg.org/dwc/terms/"
const dcTerm = "http://purl.org/dc/terms/"

// OccurrenceFields is the frozen 34-column order for occurrence.csv and
// the <core> element of meta.xml.
var OccurrenceFields = []Field{
	{"occurrenceID", dwcTerm + "occurrenceID"},
	{"basisOfRecord", dwcTerm + "basisOfRecord"},
	{"recordedBy", dwcTerm + "recordedBy"},
	{"eventDate", dwcTerm + "eventDate"},
	{"decimalLatitude", dwcTerm + "decimalLatitude"},
	{"decimalLongitude", dwcTerm + "decimalLongitude"},
	{"scientificName", dwcTerm + "scientificName"},
	{"taxonRank", dwcTerm + "taxonRank"},
	{"taxonomicStatus", dwcTerm + "taxonomicStatus"},
	{"vernacularName", dwcTerm + "vernacularName"},
	{"kingdom", dwcTerm + "kingdom"},
	{"phylum", dwcTerm + "phylum"},
	{"class", dwcTerm + "class"},
	{"order", dwcTerm + "order"},
	{"family", dwcTerm + "family"},
	{"genus", dwcTerm + "genus"},
	{"specificEpithet", dwcTerm + "specificEpithet"},
	{"infraspecificEpithet", dwcTerm + "infraspecificEpithet"},
	{"taxonID", dwcTerm + "taxonID"},
	{"occurrenceRemarks", dwcTerm + "occurrenceRemarks"},
	{"establishmentMeans", dwcTerm + "establishmentMeans"},
	{"georeferencedDate", dwcTerm + "georeferencedDate"},
	{"georeferenceProtocol", dwcTerm + "georeferenceProtocol"},
	{"coordinateUncertaintyInMeters", dwcTerm + "coordinateUncertaintyInMeters"},
	{"coordinatePrecision", dwcTerm + "coordinatePrecision"},
	{"geodeticDatum", dwcTerm + "geodeticDatum"},
	{"accessRights", dcTerm + "accessRights"},
	{"license", dcTerm + "license"},
	{"informationWithheld", dwcTerm + "informationWithheld"},
	{"modified", dcTerm + "modified"},
	{"captive", dwcTerm + "captive"},
	{"eventTime", dwcTerm + "eventTime"},
	{"verbatimEventDate", dwcTerm + "verbatimEventDate"},
	{"verbatimLocality", dwcTerm + "verbatimLocality"},
}

// MultimediaFields is the frozen 16-column order for multimedia.csv.
var MultimediaFields = []Field{
	{"occurrenceID", dwcTerm + "occurrenceID"},
	{"type", dcTerm + "type"},
	{"format", dcTerm + "format"},
	{"identifier", dcTerm + "identifier"},
	{"references", dcTerm + "references"},
	{"title", dcTerm + "title"},
	{"description", dcTerm + "description"},
	{"created", dcTerm + "created"},
	{"creator", dcTerm + "creator"},
	{"contributor", dcTerm + "contributor"},
	{"publisher", dcTerm + "publisher"},
	{"audience", dcTerm + "audience"},
	{"source", dcTerm + "source"},
	{"license", dcTerm + "license"},
	{"rightsHolder", dcTerm + "rightsHolder"},
	{"datasetID", dwcTerm + "datasetID"},
}

// AudiovisualFields is the frozen 37-column order for audiovisual.csv,
// following the Audubon Core media term set.
var AudiovisualFields = []Field{
	{"occurrenceID", dwcTerm + "occurrenceID"},
	{"identifier", dcTerm + "identifier"},
	{"type", dcTerm + "type"},
	{"title", dcTerm + "title"},
	{"modified", dcTerm + "modified"},
	{"metadataLanguageLiteral", "http://rs.tdwg.org/ac/terms/metadataLanguageLiteral"},
	{"available", dcTerm + "available"},
	{"rights", dcTerm + "rights"},
	{"owner", "http://rs.tdwg.org/ac/terms/owner"},
	{"usageTerms", "http://ns.adobe.com/xap/1.0/rights/UsageTerms"},
	{"credit", "http://ns.adobe.com/photoshop/1.0/Credit"},
	{"attributionLinkURL", "http://rs.tdwg.org/ac/terms/attributionLinkURL"},
	{"source", dcTerm + "source"},
	{"description", dcTerm + "description"},
	{"caption", "http://purl.org/dc/elements/1.1/description"},
	{"comments", "http://rs.tdwg.org/ac/terms/comments"},
	{"scientificName", dwcTerm + "scientificName"},
	{"commonName", "http://rs.tdwg.org/ac/terms/commonName"},
	{"lifeStage", dwcTerm + "lifeStage"},
	{"partOfOrganism", "http://rs.tdwg.org/ac/terms/subjectPart"},
	{"locationShown", "http://rs.tdwg.org/ac/terms/locationShown"},
	{"locationCreated", "http://rs.tdwg.org/ac/terms/locationCreated"},
	{"continent", dwcTerm + "continent"},
	{"country", dwcTerm + "country"},
	{"countryCode", dwcTerm + "countryCode"},
	{"stateProvince", dwcTerm + "stateProvince"},
	{"locality", dwcTerm + "locality"},
	{"decimalLatitude", dwcTerm + "decimalLatitude"},
	{"decimalLongitude", dwcTerm + "decimalLongitude"},
	{"accessURI", "http://rs.tdwg.org/ac/terms/accessURI"},
	{"format", dcTerm + "format"},
	{"extent", "http://rs.tdwg.org/ac/terms/furtherInformationURL"},
	{"pixelXDimension", "http://ns.adobe.com/exif/1.0/PixelXDimension"},
	{"pixelYDimension", "http://ns.adobe.com/exif/1.0/PixelYDimension"},
	{"created", dcTerm + "created"},
	{"dateTimeOriginal", "http://rs.tdwg.org/ac/terms/captureDevice"},
	{"temporalCoverage", "http://rs.tdwg.org/ac/terms/temporalCoverage"},
}

// IdentificationFields is the frozen 28-column order for identification.csv.
var IdentificationFields = []Field{
	{"occurrenceID", dwcTerm + "occurrenceID"},
	{"identificationID", dwcTerm + "identificationID"},
	{"identifiedBy", dwcTerm + "identifiedBy"},
	{"identifiedByID", dwcTerm + "identifiedByID"},
	{"dateIdentified", dwcTerm + "dateIdentified"},
	{"identificationRemarks", dwcTerm + "identificationRemarks"},
	{"taxonID", dwcTerm + "taxonID"},
	{"scientificName", dwcTerm + "scientificName"},
	{"taxonRank", dwcTerm + "taxonRank"},
	{"vernacularName", dwcTerm + "vernacularName"},
	{"taxonomicStatus", dwcTerm + "taxonomicStatus"},
	{"higherClassification", dwcTerm + "higherClassification"},
	{"kingdom", dwcTerm + "kingdom"},
	{"phylum", dwcTerm + "phylum"},
	{"class", dwcTerm + "class"},
	{"order", dwcTerm + "order"},
	{"superfamily", dwcTerm + "superfamily"},
	{"family", dwcTerm + "family"},
	{"subfamily", dwcTerm + "subfamily"},
	{"tribe", dwcTerm + "tribe"},
	{"subtribe", dwcTerm + "subtribe"},
	{"genus", dwcTerm + "genus"},
	{"subgenus", dwcTerm + "subgenus"},
	{"infragenericEpithet", dwcTerm + "infragenericEpithet"},
	{"specificEpithet", dwcTerm + "specificEpithet"},
	{"infraspecificEpithet", dwcTerm + "infraspecificEpithet"},
	{"identificationVerificationStatus", dwcTerm + "identificationVerificationStatus"},
	{"identificationCurrent", "http://rs.gbif.org/terms/1.0/identificationCurrent"},
}

// Names extracts the column-name sequence from a Field table, for CSV
// header rows.
func Names(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
