package voice

// general returns a neutral adult voice entry.
func general(id string) Voice {
	return Voice{ID: id, Style: StyleGeneral, Age: ageAdult}
}

// expressive returns a voice entry with a livelier delivery.
func expressive(id string) Voice {
	return Voice{ID: id, Style: StyleExpressive, Age: ageYoungAdult}
}

// pair builds a minimal entry for languages covered by one voice per gender.
func pair(male, female string) GenderVoices {
	return GenderVoices{
		Male:   []Voice{general(male)},
		Female: []Voice{general(female)},
	}
}

// EdgeCatalog returns the built-in catalog for the read-aloud provider.
// The returned catalog is shared; treat it as read-only.
func EdgeCatalog() Catalog { return edgeCatalog }

// ElevenLabsCatalog returns the premade voices usable with the multilingual
// model. One entry serves every language because the model carries the
// target language itself; [Catalog.Resolve] lands all lookups on it.
func ElevenLabsCatalog() Catalog { return elevenLabsCatalog }

var edgeCatalog = Catalog{
	// Languages with several voices per gender, so multi-speaker jobs can
	// give each speaker a distinct voice.
	"en": {
		Male: []Voice{
			general("en-US-GuyNeural"),
			general("en-US-DavisNeural"),
			general("en-US-TonyNeural"),
			general("en-US-JasonNeural"),
			general("en-GB-RyanNeural"),
		},
		Female: []Voice{
			general("en-US-JennyNeural"),
			expressive("en-US-AriaNeural"),
			general("en-US-SaraNeural"),
			general("en-US-MichelleNeural"),
			general("en-GB-SoniaNeural"),
		},
	},
	"es": {
		Male: []Voice{
			general("es-MX-JorgeNeural"),
			general("es-ES-AlvaroNeural"),
		},
		Female: []Voice{
			general("es-MX-DaliaNeural"),
			general("es-ES-ElviraNeural"),
		},
	},
	"fr": {
		Male: []Voice{
			general("fr-FR-HenriNeural"),
			general("fr-CA-AntoineNeural"),
		},
		Female: []Voice{
			general("fr-FR-DeniseNeural"),
			general("fr-CA-SylvieNeural"),
		},
	},
	"de": {
		Male: []Voice{
			general("de-DE-ConradNeural"),
			general("de-AT-JonasNeural"),
		},
		Female: []Voice{
			general("de-DE-KatjaNeural"),
			general("de-AT-IngridNeural"),
		},
	},
	"it": {
		Male: []Voice{
			general("it-IT-DiegoNeural"),
		},
		Female: []Voice{
			general("it-IT-ElsaNeural"),
			general("it-IT-IsabellaNeural"),
		},
	},
	"pt": {
		Male: []Voice{
			general("pt-BR-AntonioNeural"),
			general("pt-PT-DuarteNeural"),
		},
		Female: []Voice{
			general("pt-BR-FranciscaNeural"),
			general("pt-PT-RaquelNeural"),
		},
	},
	"ru": {
		Male: []Voice{
			general("ru-RU-DmitryNeural"),
		},
		Female: []Voice{
			general("ru-RU-SvetlanaNeural"),
			general("ru-RU-DariyaNeural"),
		},
	},
	"zh": {
		Male: []Voice{
			general("zh-CN-YunxiNeural"),
			general("zh-CN-YunjianNeural"),
		},
		Female: []Voice{
			expressive("zh-CN-XiaoxiaoNeural"),
			general("zh-CN-XiaoyiNeural"),
		},
	},
	"ja": pair("ja-JP-KeitaNeural", "ja-JP-NanamiNeural"),
	"ko": pair("ko-KR-InJoonNeural", "ko-KR-SunHiNeural"),
	"ar": pair("ar-SA-HamedNeural", "ar-SA-ZariyahNeural"),
	"hi": pair("hi-IN-MadhurNeural", "hi-IN-SwaraNeural"),
	"pl": pair("pl-PL-MarekNeural", "pl-PL-ZofiaNeural"),
	"nl": pair("nl-NL-MaartenNeural", "nl-NL-ColetteNeural"),
	"tr": pair("tr-TR-AhmetNeural", "tr-TR-EmelNeural"),
	"sv": pair("sv-SE-MattiasNeural", "sv-SE-SofieNeural"),

	// Regional variants pin the accent instead of letting the base entry
	// decide.
	"es-mx": pair("es-MX-JorgeNeural", "es-MX-DaliaNeural"),
	"es-es": pair("es-ES-AlvaroNeural", "es-ES-ElviraNeural"),
	"es-ar": pair("es-AR-TomasNeural", "es-AR-ElenaNeural"),
	"fr-ca": pair("fr-CA-AntoineNeural", "fr-CA-SylvieNeural"),
	"pt-br": pair("pt-BR-AntonioNeural", "pt-BR-FranciscaNeural"),
	"pt-pt": pair("pt-PT-DuarteNeural", "pt-PT-RaquelNeural"),
	"zh-tw": pair("zh-TW-YunJheNeural", "zh-TW-HsiaoChenNeural"),
	"en-us": pair("en-US-GuyNeural", "en-US-JennyNeural"),
	"en-gb": pair("en-GB-RyanNeural", "en-GB-SoniaNeural"),
	"en-au": pair("en-AU-WilliamNeural", "en-AU-NatashaNeural"),
	"en-in": pair("en-IN-PrabhatNeural", "en-IN-NeerjaNeural"),
	"zh-cn": {
		Male:   []Voice{general("zh-CN-YunxiNeural")},
		Female: []Voice{expressive("zh-CN-XiaoxiaoNeural")},
	},

	// Languages with a single voice per gender.
	"no":  pair("nb-NO-FinnNeural", "nb-NO-PernilleNeural"),
	"da":  pair("da-DK-JeppeNeural", "da-DK-ChristelNeural"),
	"fi":  pair("fi-FI-HarriNeural", "fi-FI-SelmaNeural"),
	"el":  pair("el-GR-NestorasNeural", "el-GR-AthinaNeural"),
	"cs":  pair("cs-CZ-AntoninNeural", "cs-CZ-VlastaNeural"),
	"ro":  pair("ro-RO-EmilNeural", "ro-RO-AlinaNeural"),
	"hu":  pair("hu-HU-TamasNeural", "hu-HU-NoemiNeural"),
	"th":  pair("th-TH-NiwatNeural", "th-TH-PremwadeeNeural"),
	"vi":  pair("vi-VN-NamMinhNeural", "vi-VN-HoaiMyNeural"),
	"id":  pair("id-ID-ArdiNeural", "id-ID-GadisNeural"),
	"ms":  pair("ms-MY-OsmanNeural", "ms-MY-YasminNeural"),
	"fil": pair("fil-PH-AngeloNeural", "fil-PH-BlessicaNeural"),
	"uk":  pair("uk-UA-OstapNeural", "uk-UA-PolinaNeural"),
	"he":  pair("he-IL-AvriNeural", "he-IL-HilaNeural"),
	"bn":  pair("bn-IN-BashkarNeural", "bn-IN-TanishaaNeural"),
	"ta":  pair("ta-IN-ValluvarNeural", "ta-IN-PallaviNeural"),
	"te":  pair("te-IN-MohanNeural", "te-IN-ShrutiNeural"),
}

var elevenLabsCatalog = Catalog{
	"en": {
		Male: []Voice{
			{ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Style: StyleGeneral, Age: ageAdult},
			{ID: "TxGEqnHWrfWFTfGW9XjX", Name: "Josh", Style: StyleGeneral, Age: ageYoungAdult},
			{ID: "VR6AewLTigWG4xSOukaG", Name: "Arnold", Style: StyleGeneral, Age: ageMature},
			{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Style: StyleExpressive, Age: ageAdult},
		},
		Female: []Voice{
			{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Style: StyleGeneral, Age: ageAdult},
			{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Style: StyleGeneral, Age: ageYoungAdult},
			{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Style: StyleGeneral, Age: ageMature},
			{ID: "MF3mGyEYCl7XYWbV9V6O", Name: "Elli", Style: StyleExpressive, Age: ageAdult},
		},
	},
}
