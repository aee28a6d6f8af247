package common

const KindImage = "image"
const KindVideo = "video"

var AllKinds = []string{KindImage, KindVideo}

func IsArchivableKind(kind string) bool {
	for _, k := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}
