package media

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/subauto/subauto/pkg/log"
)

type mkvtoolnix struct {
	mergeCmd   string
	extractCmd string
	filePath   string
	fileDir    string
	fileName   string
}

func NewMkvtoolnix(
	mediaPath string,
) mkvtoolnix {
	mediaPath = filepath.Clean(mediaPath)

	return mkvtoolnix{
		mergeCmd:   "mkvmerge",
		extractCmd: "mkvextract",
		filePath:   mediaPath,
		fileDir:    filepath.Dir(mediaPath),
		fileName:   filepath.Base(mediaPath),
	}
}

// ListSubtitleTracks probes the container and returns its subtitle tracks.
func (mk mkvtoolnix) ListSubtitleTracks() ([]Track, error) {
	cmdPath, err := exec.LookPath(mk.mergeCmd)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(cmdPath, mk.identifyArgs()...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run mkvmerge: %v", err)
		return nil, err
	}

	var identifyResult struct {
		Tracks []struct {
			ID         int    `json:"id"`
			Type       string `json:"type"`
			Properties struct {
				CodecID      string `json:"codec_id"`
				Language     string `json:"language"`
				TrackName    string `json:"track_name"`
				DefaultTrack bool   `json:"default_track"`
				ForcedTrack  bool   `json:"forced_track"`
			} `json:"properties"`
		} `json:"tracks"`
	}

	if err := json.Unmarshal(output, &identifyResult); err != nil {
		log.Error("Failed to parse mkvmerge output: %v", err)
		return nil, err
	}

	tracks := make([]Track, 0)
	for _, track := range identifyResult.Tracks {
		if track.Type != "subtitles" {
			continue
		}
		language := track.Properties.Language
		if language == "" {
			language = "und"
		}
		tracks = append(tracks, Track{
			ID:       track.ID,
			Codec:    track.Properties.CodecID,
			Language: language,
			Name:     track.Properties.TrackName,
			Default:  track.Properties.DefaultTrack,
			Forced:   track.Properties.ForcedTrack,
		})
	}

	return tracks, nil
}

// ExtractTrack pulls one subtitle track out of the container into toDir.
func (mk mkvtoolnix) ExtractTrack(trackID int, toDir string, name string) (string, error) {
	output := filepath.Join(toDir, name)

	cmdPath, err := exec.LookPath(mk.extractCmd)
	if err != nil {
		return "", err
	}
	cmd := exec.Command(cmdPath, mk.extractArgs(trackID, output)...)

	return output, cmd.Run()
}

// MergeSubtitle remuxes the container with the translated subtitle appended
// as a new track. outputPath must differ from the source file.
func (mk mkvtoolnix) MergeSubtitle(subtitlePath string, outputPath string, language string, trackName string) error {
	if filepath.Clean(outputPath) == mk.filePath {
		return fmt.Errorf("merge output must differ from the source file")
	}

	cmdPath, err := exec.LookPath(mk.mergeCmd)
	if err != nil {
		return err
	}
	cmd := exec.Command(cmdPath, mk.mergeArgs(subtitlePath, outputPath, language, trackName)...)

	if out, err := cmd.CombinedOutput(); err != nil {
		log.Error("Failed to run mkvmerge: %v: %s", err, out)
		return err
	}
	return nil
}

func (mk mkvtoolnix) identifyArgs() []string {
	return []string{
		"-J",
		mk.filePath,
	}
}

func (mk mkvtoolnix) extractArgs(trackID int, targetPath string) []string {
	return []string{
		mk.filePath,
		"tracks",
		fmt.Sprintf("%d:%s", trackID, targetPath),
	}
}

func (mk mkvtoolnix) mergeArgs(subtitlePath, outputPath, language, trackName string) []string {
	args := []string{
		"-o", outputPath,
		mk.filePath,
	}
	if language != "" {
		args = append(args, "--language", "0:"+language)
	}
	if trackName != "" {
		args = append(args, "--track-name", "0:"+trackName)
	}
	return append(args, subtitlePath)
}
