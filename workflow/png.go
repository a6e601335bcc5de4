package workflow

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
)

// NewGraphFromPNGReader recovers the API-format graph the engine embeds in
// the tEXt metadata of every image it saves. Useful to re-run or derive from
// a previously generated image without its original template.
func NewGraphFromPNGReader(r io.Reader) (Graph, error) {
	metadata, err := pngTextChunks(r)
	if err != nil {
		return nil, err
	}
	prompt, ok := metadata["prompt"]
	if !ok {
		return nil, errors.New("png does not contain prompt metadata")
	}
	return NewGraphFromJSONReader(strings.NewReader(prompt))
}

// NewGraphFromPNGFile recovers the embedded graph from a PNG file.
func NewGraphFromPNGFile(path string) (Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return NewGraphFromPNGReader(file)
}

func pngTextChunks(r io.Reader) (map[string]string, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, []byte{137, 80, 78, 71, 13, 10, 26, 10}) {
		return nil, errors.New("not a valid PNG file")
	}

	chunks := make(map[string]string)
	for {
		var length uint32
		err := binary.Read(r, binary.BigEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			return nil, err
		}

		if string(chunkType) == "tEXt" {
			chunkData := make([]byte, length)
			if _, err := io.ReadFull(r, chunkData); err != nil {
				return nil, err
			}
			keywordEnd := bytes.IndexByte(chunkData, 0)
			if keywordEnd == -1 {
				return nil, errors.New("malformed tEXt chunk")
			}
			chunks[string(chunkData[:keywordEnd])] = string(chunkData[keywordEnd+1:])
		} else if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, err
		}

		// skip the CRC
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}
	}

	return chunks, nil
}
