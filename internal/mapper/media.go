package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dwca-toolkit/downloader/internal/models"
)

var sizeTokens = []string{"square", "small", "medium", "large"}

// resolveMediaLocation returns the archive-relative path for photo.ID if
// it was downloaded (mediaPaths), otherwise the remote URL with its size
// token rewritten to "original".
func resolveMediaLocation(photo *models.Photo, mediaPaths map[int]string) string {
	if path, ok := mediaPaths[photo.ID]; ok {
		return path
	}
	return rewriteToOriginal(photo.URL)
}

func rewriteToOriginal(url string) string {
	for _, token := range sizeTokens {
		if strings.Contains(url, token) {
			return strings.Replace(url, token, "original", 1)
		}
	}
	return url
}

func photoReferenceURL(photoID int) string {
	return fmt.Sprintf("http://www.inaturalist.org/photos/%d", photoID)
}

// Multimedia maps one photo of one observation to a 16-field
// simple-multimedia row, in MultimediaFields order.
func Multimedia(obs *models.Observation, photo *models.Photo, mediaPaths map[int]string) []string {
	row := make([]string, len(MultimediaFields))
	row[0] = strconv.Itoa(obs.ID)
	row[1] = "StillImage"
	row[2] = "image/jpeg"
	row[3] = resolveMediaLocation(photo, mediaPaths)
	row[4] = photoReferenceURL(photo.ID)
	row[8] = recordedBy(obs)
	row[10] = "iNaturalist"
	row[13] = derefString(photo.LicenseCode)
	row[14] = recordedBy(obs)
	return row
}

// Audiovisual maps one photo of one observation to a 37-field
// audiovisual row, in AudiovisualFields order. Unlike Occurrence, which
// prefers the private geometry when present, the coordinates here always
// come from the public geometry: a richer-context
// extension is still subject to the same geoprivacy constraints that
// govern any other publicly distributed copy of the record.
func Audiovisual(obs *models.Observation, photo *models.Photo, mediaPaths map[int]string) []string {
	row := make([]string, len(AudiovisualFields))
	row[0] = strconv.Itoa(obs.ID)
	row[1] = photoReferenceURL(photo.ID)
	row[2] = "StillImage"
	row[5] = "en"
	row[6] = "online"
	row[7] = derefString(photo.LicenseCode)
	row[8] = recordedBy(obs)
	row[9] = derefString(photo.LicenseCode)
	row[10] = derefString(photo.Attribution)
	row[11] = photoReferenceURL(photo.ID)
	row[12] = "iNaturalist"

	if obs.Taxon != nil {
		row[16] = obs.Taxon.Name
		row[17] = derefString(obs.Taxon.PreferredCommonName)
	}

	if obs.Geojson != nil && len(obs.Geojson.Coordinates) >= 2 {
		row[27] = strconv.FormatFloat(obs.Geojson.Coordinates[1], 'f', -1, 64)
		row[28] = strconv.FormatFloat(obs.Geojson.Coordinates[0], 'f', -1, 64)
	}

	row[29] = resolveMediaLocation(photo, mediaPaths)
	row[30] = "image/jpeg"
	return row
}
