package extract

import (
	"bytes"
	"os/exec"
	"strings"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// ToolStatus represents the availability of an external helper.
type ToolStatus struct {
	Name      string
	Available bool
	Version   string
	Path      string
	Error     error
}

// CheckTools reports on exiftool and the ImageMagick HEIC delegate.
// ImageMagick must have been initialised by the caller.
func CheckTools() []ToolStatus {
	return []ToolStatus{checkExiftool(), checkHEIC()}
}

func checkExiftool() ToolStatus {
	st := ToolStatus{Name: "exiftool"}
	path, err := exec.LookPath("exiftool")
	if err != nil {
		st.Error = err
		return st
	}
	st.Path = path
	st.Available = true

	cmd := exec.Command(path, "-ver")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err == nil {
		st.Version = strings.TrimSpace(out.String())
	}
	return st
}

func checkHEIC() ToolStatus {
	st := ToolStatus{Name: "imagemagick-heic"}
	version, _ := imagick.GetVersion()
	st.Version = version
	if len(imagick.QueryFormats("HEIC")) > 0 {
		st.Available = true
	}
	return st
}
