package dedup

import "strings"

// stopWords is the english function-word list excluded from vectorization.
var stopWords = func() map[string]struct{} {
	words := strings.Fields(`
a about above after again against all am an and any are as at be because
been before being below between both but by can cannot could did do does
doing down during each few for from further had has have having he her
here hers herself him himself his how i if in into is it its itself just
me more most my myself no nor not now of off on once only or other our
ours ourselves out over own same she should so some such than that the
their theirs them themselves then there these they this those through to
too under until up very was we were what when where which while who whom
why will with would you your yours yourself yourselves
also among always another anyone anything anywhere become becomes became
beside besides beyond bottom call con de done due eg either eight eleven
else elsewhere empty enough etc even ever every everyone everything
everywhere except fifteen fifty fill find fire first five former formerly
forty found four front full get give go hence hereafter hereby herein
hereupon however hundred ie inc indeed interest keep last latter latterly
least less ltd made many may meanwhile might mill mine moreover mostly
move much must name namely neither never nevertheless next nine nobody
none noone nothing nowhere often one onto others otherwise part per
perhaps please put rather re same see seem seemed seeming seems serious
several show side since sincere six sixty somehow someone something
sometime sometimes somewhere still system take ten therefore thereafter
thereby therein thereupon thick thin third three thru thus together
toward towards twelve twenty two un upon us via want well whatever
whence whenever whereafter whereas whereby wherein whereupon wherever
whether whither whoever whole whose within without yet
`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()
