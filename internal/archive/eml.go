package archive

import (
	"strings"
	"time"
)

// generateEML renders eml.xml following the Ecological Metadata Language
// profile GBIF expects alongside a Darwin Core Archive. now is injected
// by the caller so this function stays a pure, clock-free total function.
func generateEML(abstractLines []string, now time.Time) string {
	packageID := "darwincore-archive-" + now.UTC().Format("20060102150405")
	pubDate := now.UTC().Format("2006-01-02")

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<eml:eml xmlns:eml=\"eml://ecoinformatics.org/eml-2.1.1\"\n" +
		"  xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\"\n" +
		"  xsi:schemaLocation=\"eml://ecoinformatics.org/eml-2.1.1 http://rs.gbif.org/schema/eml-gbif-profile/1.1/eml.xsd\"\n" +
		`  packageId="` + escapeXML(packageID) + "\"\n" +
		"  system=\"http://gbif.org\"\n" +
		"  scope=\"system\">\n")
	b.WriteString("  <dataset>\n")
	b.WriteString("    <title>Darwin Core Archive Download</title>\n")
	b.WriteString("    <creator>\n      <organizationName>dwca-download</organizationName>\n    </creator>\n")
	b.WriteString("    <metadataProvider>\n      <organizationName>dwca-download</organizationName>\n    </metadataProvider>\n")
	b.WriteString("    <pubDate>" + pubDate + "</pubDate>\n")
	b.WriteString("    <language>en</language>\n")
	b.WriteString("    <abstract>\n")
	if len(abstractLines) == 0 {
		b.WriteString("      <para>Observations exported from iNaturalist</para>\n")
	} else {
		for _, line := range abstractLines {
			b.WriteString("      <para>" + escapeXML(line) + "</para>\n")
		}
	}
	b.WriteString("    </abstract>\n")
	b.WriteString("    <contact>\n      <organizationName>dwca-download</organizationName>\n    </contact>\n")
	b.WriteString("  </dataset>\n")
	b.WriteString("</eml:eml>\n")
	return b.String()
}
