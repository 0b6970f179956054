package archive

import (
	"fmt"
	"strings"
	"time"
)

const (
	namePrefix = "backup_"
	// Extension of every archive this package writes.
	Extension  = ".zip"
	dateLayout = "20060102"
)

// ArchiveName returns backup_<versionTag>_<YYYYMMDD>.zip.
func ArchiveName(versionTag string, t time.Time) string {
	return fmt.Sprintf("%s%s_%s%s", namePrefix, versionTag, t.Format(dateLayout), Extension)
}

// ParseArchiveName reverses ArchiveName. Version tags may themselves contain underscores.
func ParseArchiveName(name string) (versionTag string, date time.Time, ok bool) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, Extension) {
		return "", time.Time{}, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), Extension)
	i := strings.LastIndex(body, "_")
	if i <= 0 {
		return "", time.Time{}, false
	}
	date, err := time.Parse(dateLayout, body[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return body[:i], date, true
}
