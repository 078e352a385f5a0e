package pages

import (
	"html/template"

	"github.com/a-h/templ"
)

type LoginPageProps struct {
	FirebaseAPIKey     string
	FirebaseAuthDomain string
	FirebaseProjectID  string
	Error              string
}

var loginTmpl = template.Must(template.New("login").Parse(`<div class="card">
<h1>Admin sign in</h1>
{{if .Error}}<p class="muted">{{.Error}}</p>{{end}}
<button id="sign-in" class="button">Sign in with Google</button>
</div>
<script type="module">
import { initializeApp } from "https://www.gstatic.com/firebasejs/10.12.0/firebase-app.js";
import { getAuth, GoogleAuthProvider, signInWithPopup } from "https://www.gstatic.com/firebasejs/10.12.0/firebase-auth.js";
const app = initializeApp({apiKey: {{.FirebaseAPIKey}}, authDomain: {{.FirebaseAuthDomain}}, projectId: {{.FirebaseProjectID}}});
const auth = getAuth(app);
document.getElementById("sign-in").addEventListener("click", async () => {
  const cred = await signInWithPopup(auth, new GoogleAuthProvider());
  const token = await cred.user.getIdToken();
  const res = await fetch("/auth/login", {method: "POST", headers: {"Authorization": "Bearer " + token}});
  if (res.ok) { window.location = "/admin/whop"; }
});
</script>`))

func LoginPage(props LoginPageProps) templ.Component {
	return Layout("Sign in", templ.FromGoHTML(loginTmpl, props))
}
