package reflex

// greetings are short utterances that must survive the length heuristic.
var greetings = map[string]bool{
	"oi":  true,
	"ola": true,
	"ei":  true,
	"opa": true,
	"ok":  true,
	"sim": true,
	"nao": true,
	"s":   true,
}

// seedArtists is the bundled vocabulary the fuzzy matcher starts from, before
// anything is harvested from memory.
var seedArtists = []string{
	"Coldplay",
	"Anitta",
	"Anti Da Menace",
	"Drake",
	"Matuê",
	"Legião Urbana",
	"Racionais MC's",
	"Marília Mendonça",
	"Henrique e Juliano",
	"Jorge e Mateus",
	"Tim Maia",
	"Caetano Veloso",
	"Gilberto Gil",
	"Djavan",
	"Charlie Brown Jr",
	"Skank",
	"Titãs",
	"Os Paralamas do Sucesso",
	"The Weeknd",
	"Imagine Dragons",
	"Linkin Park",
	"Queen",
	"Metallica",
	"Arctic Monkeys",
	"Daft Punk",
	"Eminem",
	"Kendrick Lamar",
	"Billie Eilish",
	"Taylor Swift",
	"Bruno Mars",
}

// musicVerbs open a musical request ("toca", "coloca", "quero ouvir").
var musicVerbs = []string{
	"tocar", "toque", "toca", "tocando",
	"ouvir", "escutar", "escuta",
	"bota", "botar", "coloca", "colocar", "coloque",
	"poe", "põe",
}

// leadingFiller is stripped from the front of a musical term.
var leadingFiller = map[string]bool{
	"o": true, "a": true, "os": true, "as": true,
	"um": true, "uma": true,
	"musica": true, "música": true, "som": true,
	"de": true, "do": true, "da": true,
}
