package discid

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	textcatalog "golang.org/x/text/message/catalog"
)

type localizedMessage struct {
	withField    bool
	translations map[language.Tag]string
}

var validationMessages = map[ErrorKind]localizedMessage{
	KindInvalidTocFormat: {translations: map[language.Tag]string{
		language.English: "The provided CD TOC is not valid.",
		language.German:  "Das angegebene CD-Inhaltsverzeichnis ist ungültig.",
		language.French:  "La table des matières du CD fournie n’est pas valide.",
	}},
	KindInvalidParameter: {withField: true, translations: map[language.Tag]string{
		language.English: "The parameter “%s” must be a positive number.",
		language.German:  "Der Parameter „%s“ muss eine positive Zahl sein.",
		language.French:  "Le paramètre « %s » doit être un nombre positif.",
	}},
	KindMissingParameter: {withField: true, translations: map[language.Tag]string{
		language.English: "The parameter “%s” is required.",
		language.German:  "Der Parameter „%s“ ist erforderlich.",
		language.French:  "Le paramètre « %s » est obligatoire.",
	}},
	KindMediumNotFound: {translations: map[language.Tag]string{
		language.English: "The requested medium could not be found.",
		language.German:  "Das angeforderte Medium wurde nicht gefunden.",
		language.French:  "Le support demandé est introuvable.",
	}},
	KindCDTOCNotFound: {translations: map[language.Tag]string{
		language.English: "The requested disc ID could not be found.",
		language.German:  "Die angeforderte Disc-ID wurde nicht gefunden.",
		language.French:  "L’identifiant de disque demandé est introuvable.",
	}},
	KindIneligibleMedium: {translations: map[language.Tag]string{
		language.English: "This medium’s format cannot have disc IDs.",
		language.German:  "Das Format dieses Mediums kann keine Disc-IDs haben.",
		language.French:  "Le format de ce support ne peut pas avoir d’identifiants de disque.",
	}},
	KindDuplicateAttachment: {translations: map[language.Tag]string{
		language.English: "This CD TOC is already attached to this medium.",
		language.German:  "Dieses CD-Inhaltsverzeichnis ist diesem Medium bereits zugeordnet.",
		language.French:  "Cette table des matières est déjà associée à ce support.",
	}},
	KindTrackCountMismatch: {translations: map[language.Tag]string{
		language.English: "The number of tracks on this medium does not match the CD TOC.",
		language.German:  "Die Anzahl der Titel dieses Mediums stimmt nicht mit dem CD-Inhaltsverzeichnis überein.",
		language.French:  "Le nombre de pistes de ce support ne correspond pas à la table des matières.",
	}},
	KindMissingEditNote: {translations: map[language.Tag]string{
		language.English: "You must provide an edit note.",
		language.German:  "Du musst eine Bearbeitungsnotiz angeben.",
		language.French:  "Vous devez fournir une note de modification.",
	}},
}

var (
	supportedLanguages = []language.Tag{language.English, language.German, language.French}
	languageMatcher    = language.NewMatcher(supportedLanguages)
	messageCatalog     = buildMessageCatalog()
)

func buildMessageCatalog() textcatalog.Catalog {
	builder := textcatalog.NewBuilder(textcatalog.Fallback(language.English))
	for kind, entry := range validationMessages {
		for tag, text := range entry.translations {
			if err := builder.SetString(tag, string(kind), text); err != nil {
				panic(err)
			}
		}
	}
	return builder
}

// MatchLanguage picks the best supported language for an Accept-Language header value.
func MatchLanguage(acceptLanguage string) language.Tag {
	preferred, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(preferred) == 0 {
		return language.English
	}
	_, index, _ := languageMatcher.Match(preferred...)
	return supportedLanguages[index]
}

// Localize renders the human-readable message for the failure in the requested language.
func (e *ValidationError) Localize(tag language.Tag) string {
	printer := message.NewPrinter(tag, message.Catalog(messageCatalog))
	entry, ok := validationMessages[e.Kind]
	if !ok {
		return e.Error()
	}
	if entry.withField {
		return printer.Sprintf(string(e.Kind), e.Field)
	}
	return printer.Sprintf(string(e.Kind))
}
