package filter

/*
Here the Env used in the notification target filters is defined.
Once this struct is fixed, it should not be changed, otherwise filter
expressions stored in callers' configuration may not compile any more
(f.e. if properties are renamed etc.)
*/

type User struct {
	Id         string
	Nick       string
	Status     string
	Tags       map[string]string
	LastOnline int64
}

type Target struct {
	User
}

type Env struct {
	Target
	Type    string
	Title   string
	Created int64
}
