package archive

import (
	"strconv"
	"strings"

	"github.com/dwca-toolkit/downloader/internal/mapper"
)

const occurrenceRowType = "http://rs.tdwg.org/dwc/terms/Occurrence"

var extensionRowType = map[string]string{
	ExtMultimedia:      "http://rs.gbif.org/terms/1.0/Multimedia",
	ExtAudiovisual:      "http://rs.tdwg.org/ac/terms/Multimedia",
	ExtIdentifications: "http://rs.tdwg.org/dwc/terms/Identification",
}

// generateMetaXML renders the archive descriptor. enabled lists the
// extensions that received at least one row, in the fixed output order.
func generateMetaXML(enabled []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<archive xmlns=\"http://rs.tdwg.org/dwc/text/\"\n" +
		"  xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\"\n" +
		"  xsi:schemaLocation=\"http://rs.tdwg.org/dwc/text/ http://rs.tdwg.org/dwc/text/tdwg_dwc_text.xsd\">\n")

	writeBlock(&b, "core", occurrenceRowType, "occurrence.csv", mapper.OccurrenceFields, true)
	for _, name := range enabled {
		writeBlock(&b, "extension", extensionRowType[name], extensionFile[name], extensionFields[name], false)
	}

	b.WriteString("</archive>\n")
	return b.String()
}

func writeBlock(b *strings.Builder, tag, rowType, filename string, fields []mapper.Field, isCore bool) {
	b.WriteString(`  <` + tag + ` encoding="UTF-8" fieldsTerminatedBy="," linesTerminatedBy="\n" fieldsEnclosedBy="&quot;" ignoreHeaderLines="1" rowType="` + escapeXML(rowType) + `">` + "\n")
	b.WriteString("    <files>\n      <location>" + escapeXML(filename) + "</location>\n    </files>\n")
	if isCore {
		b.WriteString(`    <id index="0"/>` + "\n")
	} else {
		b.WriteString(`    <coreid index="0"/>` + "\n")
	}
	for i, f := range fields {
		b.WriteString(`    <field index="` + strconv.Itoa(i) + `" term="` + escapeXML(f.Term) + `"/>` + "\n")
	}
	b.WriteString("  </" + tag + ">\n")
}

// escapeXML escapes only &, <, and > — the scope required for this
// descriptor's text content and attribute values.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
