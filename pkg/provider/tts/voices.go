package tts

import (
	"slices"
	"strings"
)

// Gender is the advertised gender of a catalogue voice.
type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderNeutral Gender = "NEUTRAL"
)

// Voice is a catalogue entry offered to clients. Providers map Name onto
// their own voices.
type Voice struct {
	Name        string `json:"name"`
	Gender      Gender `json:"gender"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
}

func neural(name string, g Gender, display string) Voice {
	return Voice{Name: name, Gender: g, Type: "Neural", DisplayName: display}
}

var catalog = map[string][]Voice{
	"en-US": {
		neural("en-US-Neural2-A", GenderMale, "Alex"),
		neural("en-US-Neural2-C", GenderFemale, "Clara"),
		neural("en-US-Neural2-D", GenderMale, "David"),
		neural("en-US-Neural2-E", GenderFemale, "Emma"),
		neural("en-US-Neural2-F", GenderFemale, "Fiona"),
		neural("en-US-Neural2-G", GenderFemale, "Grace"),
		neural("en-US-Neural2-H", GenderFemale, "Hannah"),
		neural("en-US-Neural2-I", GenderMale, "Ian"),
		neural("en-US-Neural2-J", GenderMale, "James"),
	},
	"es-ES": {
		neural("es-ES-Neural2-A", GenderFemale, "Alma"),
		neural("es-ES-Neural2-B", GenderMale, "Berto"),
		neural("es-ES-Neural2-C", GenderFemale, "Carmen"),
		neural("es-ES-Neural2-D", GenderFemale, "Dulce"),
		neural("es-ES-Neural2-E", GenderFemale, "Elena"),
		neural("es-ES-Neural2-F", GenderMale, "Federico"),
	},
	"fr-FR": {
		neural("fr-FR-Neural2-A", GenderFemale, "Amélie"),
		neural("fr-FR-Neural2-B", GenderMale, "Bernard"),
		neural("fr-FR-Neural2-C", GenderFemale, "Céline"),
		neural("fr-FR-Neural2-D", GenderMale, "Denis"),
		neural("fr-FR-Neural2-E", GenderFemale, "Élise"),
	},
	"de-DE": {
		neural("de-DE-Neural2-A", GenderFemale, "Anna"),
		neural("de-DE-Neural2-B", GenderMale, "Bruno"),
		neural("de-DE-Neural2-C", GenderFemale, "Clara"),
		neural("de-DE-Neural2-D", GenderMale, "David"),
		neural("de-DE-Neural2-E", GenderMale, "Erik"),
	},
	"it-IT": {
		neural("it-IT-Neural2-A", GenderFemale, "Aurora"),
		neural("it-IT-Neural2-B", GenderFemale, "Bianca"),
		neural("it-IT-Neural2-C", GenderMale, "Carlo"),
		neural("it-IT-Neural2-D", GenderMale, "Diego"),
	},
	"ja-JP": {
		neural("ja-JP-Neural2-A", GenderFemale, "Akiko"),
		neural("ja-JP-Neural2-B", GenderFemale, "Chika"),
		neural("ja-JP-Neural2-C", GenderMale, "Daichi"),
		neural("ja-JP-Neural2-D", GenderMale, "Genta"),
	},
	"zh-CN": {
		neural("cmn-CN-Neural2-A", GenderFemale, "Xiaoxiao"),
		neural("cmn-CN-Neural2-B", GenderMale, "Yunxi"),
		neural("cmn-CN-Neural2-C", GenderFemale, "Xiaohan"),
		neural("cmn-CN-Neural2-D", GenderMale, "Yunyang"),
	},
}

// Voices returns a copy of the catalogue for language. Unknown languages
// yield an empty, non-nil slice.
func Voices(language string) []Voice {
	return append([]Voice{}, catalog[language]...)
}

// Languages returns the language codes present in the catalogue, sorted.
func Languages() []string {
	langs := make([]string, 0, len(catalog))
	for l := range catalog {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

// LookupVoice finds a catalogue voice by name across all languages.
func LookupVoice(name string) (Voice, bool) {
	for _, voices := range catalog {
		for _, v := range voices {
			if v.Name == name {
				return v, true
			}
		}
	}
	return Voice{}, false
}

var previewTexts = map[string]string{
	"en": "Hello, this is how I sound. I can help you convert your text to natural speech.",
	"es": "Hola, así es como sueno. Puedo ayudarte a convertir tu texto en habla natural.",
	"fr": "Bonjour, voici comment je sonne. Je peux vous aider à convertir votre texte en parole naturelle.",
	"de": "Hallo, so klinge ich. Ich kann Ihnen helfen, Ihren Text in natürliche Sprache umzuwandeln.",
	"it": "Ciao, ecco come suono. Posso aiutarti a convertire il tuo testo in discorso naturale.",
	"pt": "Olá, é assim que eu soo. Posso ajudá-lo a converter seu texto em fala natural.",
	"ja": "こんにちは、これが私の声です。テキストを自然な音声に変換するお手伝いができます。",
	"ko": "안녕하세요, 이것이 제 목소리입니다. 텍스트를 자연스러운 음성으로 변환하는 데 도움을 드릴 수 있습니다.",
	"zh": "你好，这是我的声音。我可以帮助你把文字转换成自然的语音。",
}

// PreviewText returns the sample sentence used for voice previews in
// language. Only the primary subtag is considered; unknown languages get the
// English sample.
func PreviewText(language string) string {
	primary, _, _ := strings.Cut(strings.ToLower(language), "-")
	if t, ok := previewTexts[primary]; ok {
		return t
	}
	return previewTexts["en"]
}
