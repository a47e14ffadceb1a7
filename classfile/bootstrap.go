package classfile

// Bootstrap returns a repository preloaded with the core library classes that
// hand-written class sets usually reference. Bootstrap methods have no code;
// they are marked native so nothing tries to verify them.
func Bootstrap() *Repository {
	r := NewRepository()
	for _, cc := range coreClasses {
		c := NewClass(cc.name, cc.super)
		c.Access = cc.access
		c.Interfaces = cc.interfaces
		for _, f := range cc.fields {
			c.AddField(f.name, f.desc, f.access)
		}
		for _, m := range cc.methods {
			access := m.access
			if !access.Has(AccAbstract) {
				access |= AccNative
			}
			c.AddMethod(&Method{Name: m.name, Descriptor: m.desc, Access: access})
		}
		r.Register(c)
	}
	return r
}

type coreMember struct {
	name   string
	desc   string
	access AccessFlags
}

type coreClass struct {
	name       string
	super      string
	access     AccessFlags
	interfaces []string
	fields     []coreMember
	methods    []coreMember
}

const (
	accPub         = AccPublic
	accPubStatic   = AccPublic | AccStatic
	accPubFinal    = AccPublic | AccFinal
	accPubAbstract = AccPublic | AccAbstract
	accPubConst    = AccPublic | AccStatic | AccFinal
	accIface       = AccPublic | AccInterface | AccAbstract
	accClass       = AccPublic | AccSynchronized
)

var coreClasses = []coreClass{
	{
		name: ObjectClass, access: accClass,
		methods: []coreMember{
			{"<init>", "()V", accPub},
			{"hashCode", "()I", accPub},
			{"equals", "(Ljava/lang/Object;)Z", accPub},
			{"toString", "()Ljava/lang/String;", accPub},
			{"getClass", "()Ljava/lang/Class;", accPubFinal},
			{"clone", "()Ljava/lang/Object;", AccProtected},
			{"finalize", "()V", AccProtected},
			{"notify", "()V", accPubFinal},
			{"wait", "()V", accPubFinal},
		},
	},
	{name: "java/io/Serializable", super: ObjectClass, access: accIface},
	{name: "java/lang/Cloneable", super: ObjectClass, access: accIface},
	{
		name: "java/lang/Comparable", super: ObjectClass, access: accIface,
		methods: []coreMember{{"compareTo", "(Ljava/lang/Object;)I", accPubAbstract}},
	},
	{
		name: "java/lang/CharSequence", super: ObjectClass, access: accIface,
		methods: []coreMember{
			{"length", "()I", accPubAbstract},
			{"charAt", "(I)C", accPubAbstract},
		},
	},
	{
		name: "java/lang/Runnable", super: ObjectClass, access: accIface,
		methods: []coreMember{{"run", "()V", accPubAbstract}},
	},
	{
		name: StringClass, super: ObjectClass, access: accClass | AccFinal,
		interfaces: []string{"java/io/Serializable", "java/lang/Comparable", "java/lang/CharSequence"},
		methods: []coreMember{
			{"<init>", "()V", accPub},
			{"<init>", "([C)V", accPub},
			{"length", "()I", accPub},
			{"charAt", "(I)C", accPub},
			{"isEmpty", "()Z", accPub},
			{"concat", "(Ljava/lang/String;)Ljava/lang/String;", accPub},
			{"equals", "(Ljava/lang/Object;)Z", accPub},
			{"compareTo", "(Ljava/lang/Object;)I", accPub},
			{"valueOf", "(I)Ljava/lang/String;", accPubStatic},
			{"valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", accPubStatic},
		},
	},
	{
		name: ClassClass, super: ObjectClass, access: accClass | AccFinal,
		interfaces: []string{"java/io/Serializable"},
		methods: []coreMember{
			{"getName", "()Ljava/lang/String;", accPub},
			{"isInstance", "(Ljava/lang/Object;)Z", accPub},
		},
	},
	{
		name: ThrowableClass, super: ObjectClass, access: accClass,
		interfaces: []string{"java/io/Serializable"},
		methods: []coreMember{
			{"<init>", "()V", accPub},
			{"<init>", "(Ljava/lang/String;)V", accPub},
			{"getMessage", "()Ljava/lang/String;", accPub},
			{"printStackTrace", "()V", accPub},
		},
	},
	throwable("java/lang/Exception", ThrowableClass),
	throwable("java/lang/Error", ThrowableClass),
	throwable("java/lang/RuntimeException", "java/lang/Exception"),
	throwable("java/lang/NullPointerException", "java/lang/RuntimeException"),
	throwable("java/lang/IllegalArgumentException", "java/lang/RuntimeException"),
	throwable("java/lang/IllegalStateException", "java/lang/RuntimeException"),
	throwable("java/lang/ArithmeticException", "java/lang/RuntimeException"),
	throwable("java/lang/ClassCastException", "java/lang/RuntimeException"),
	throwable("java/io/IOException", "java/lang/Exception"),
	{
		name: "java/lang/Number", super: ObjectClass, access: accClass | AccAbstract,
		interfaces: []string{"java/io/Serializable"},
		methods: []coreMember{
			{"<init>", "()V", accPub},
			{"intValue", "()I", accPubAbstract},
			{"longValue", "()J", accPubAbstract},
			{"doubleValue", "()D", accPubAbstract},
		},
	},
	{
		name: "java/lang/Integer", super: "java/lang/Number", access: accClass | AccFinal,
		interfaces: []string{"java/lang/Comparable"},
		fields: []coreMember{
			{"MAX_VALUE", "I", accPubConst},
			{"MIN_VALUE", "I", accPubConst},
		},
		methods: []coreMember{
			{"<init>", "(I)V", accPub},
			{"valueOf", "(I)Ljava/lang/Integer;", accPubStatic},
			{"parseInt", "(Ljava/lang/String;)I", accPubStatic},
			{"intValue", "()I", accPub},
			{"longValue", "()J", accPub},
			{"doubleValue", "()D", accPub},
			{"compareTo", "(Ljava/lang/Object;)I", accPub},
		},
	},
	{
		name: "java/lang/Long", super: "java/lang/Number", access: accClass | AccFinal,
		interfaces: []string{"java/lang/Comparable"},
		methods: []coreMember{
			{"valueOf", "(J)Ljava/lang/Long;", accPubStatic},
			{"intValue", "()I", accPub},
			{"longValue", "()J", accPub},
			{"doubleValue", "()D", accPub},
			{"compareTo", "(Ljava/lang/Object;)I", accPub},
		},
	},
	{
		name: "java/lang/Math", super: ObjectClass, access: accClass | AccFinal,
		methods: []coreMember{
			{"max", "(II)I", accPubStatic},
			{"abs", "(J)J", accPubStatic},
			{"sqrt", "(D)D", accPubStatic},
		},
	},
	{
		name: "java/io/PrintStream", super: ObjectClass, access: accClass,
		methods: []coreMember{
			{"println", "()V", accPub},
			{"println", "(I)V", accPub},
			{"println", "(J)V", accPub},
			{"println", "(D)V", accPub},
			{"println", "(Ljava/lang/String;)V", accPub},
			{"println", "(Ljava/lang/Object;)V", accPub},
			{"print", "(Ljava/lang/String;)V", accPub},
		},
	},
	{
		name: "java/lang/System", super: ObjectClass, access: accClass | AccFinal,
		fields: []coreMember{
			{"out", "Ljava/io/PrintStream;", accPubConst},
			{"err", "Ljava/io/PrintStream;", accPubConst},
		},
		methods: []coreMember{
			{"currentTimeMillis", "()J", accPubStatic},
			{"arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", accPubStatic},
			{"identityHashCode", "(Ljava/lang/Object;)I", accPubStatic},
		},
	},
	{
		name: "java/lang/StringBuilder", super: ObjectClass, access: accClass | AccFinal,
		interfaces: []string{"java/io/Serializable", "java/lang/CharSequence"},
		methods: []coreMember{
			{"<init>", "()V", accPub},
			{"<init>", "(Ljava/lang/String;)V", accPub},
			{"append", "(Ljava/lang/String;)Ljava/lang/StringBuilder;", accPub},
			{"append", "(I)Ljava/lang/StringBuilder;", accPub},
			{"append", "(J)Ljava/lang/StringBuilder;", accPub},
			{"append", "(Ljava/lang/Object;)Ljava/lang/StringBuilder;", accPub},
			{"length", "()I", accPub},
			{"charAt", "(I)C", accPub},
			{"toString", "()Ljava/lang/String;", accPub},
		},
	},
	{
		name: MethodHandleClass, super: ObjectClass, access: accClass | AccAbstract,
		methods: []coreMember{
			{"invoke", "([Ljava/lang/Object;)Ljava/lang/Object;", accPub},
			{"type", "()Ljava/lang/invoke/MethodType;", accPub},
		},
	},
	{
		name: MethodTypeClass, super: ObjectClass, access: accClass | AccFinal,
		interfaces: []string{"java/io/Serializable"},
		methods: []coreMember{
			{"parameterCount", "()I", accPub},
		},
	},
}

func throwable(name, super string) coreClass {
	return coreClass{
		name: name, super: super, access: accClass,
		methods: []coreMember{
			{"<init>", "()V", accPub},
			{"<init>", "(Ljava/lang/String;)V", accPub},
		},
	}
}
